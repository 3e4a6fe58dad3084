package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-client/internal/api"
	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/session"
	"github.com/mmeshcher/delivery-client/internal/validation"
)

type stubBackend struct {
	mu sync.Mutex

	loginToken  string
	loginErr    error
	registerErr error
	user        *model.User
	userErr     error

	myOrders   []model.Order
	available  []model.Order
	deliveries []model.Order

	orderByID   *model.Order
	orderErr    error
	userByID    *model.User
	userByIDErr error
	estByID     *model.Establishment
	estByIDErr  error

	createOrderErr error
	acceptErr      error
	updateErr      error
	completeErr    error
	uploadErr      error

	registerCalls    int
	createOrderCalls int
	lastCreate       api.CreateOrderRequest
}

func (s *stubBackend) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerCalls++
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &model.User{Username: username, Email: email, Points: 100}, nil
}

func (s *stubBackend) Login(ctx context.Context, email, password string) (string, error) {
	if s.loginErr != nil {
		return "", s.loginErr
	}
	return s.loginToken, nil
}

func (s *stubBackend) CurrentUser(ctx context.Context) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func (s *stubBackend) UserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByIDErr != nil {
		return nil, s.userByIDErr
	}
	return s.userByID, nil
}

func (s *stubBackend) Establishments(ctx context.Context, loc *model.Location) ([]model.Establishment, error) {
	return []model.Establishment{{ID: "full-list"}}, nil
}

func (s *stubBackend) SearchEstablishments(ctx context.Context, query string, loc *model.Location) ([]model.Establishment, error) {
	return []model.Establishment{{ID: "filtered"}}, nil
}

func (s *stubBackend) EstablishmentByID(ctx context.Context, id string) (*model.Establishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.estByIDErr != nil {
		return nil, s.estByIDErr
	}
	return s.estByID, nil
}

func (s *stubBackend) EstablishmentMenu(ctx context.Context, id string) ([]model.MenuItem, error) {
	return nil, nil
}

func (s *stubBackend) OrderByID(ctx context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	return s.orderByID, nil
}

func (s *stubBackend) CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createOrderCalls++
	s.lastCreate = req
	if s.createOrderErr != nil {
		return nil, s.createOrderErr
	}
	return &model.Order{ID: "o1", Status: model.OrderStatusPending}, nil
}

func (s *stubBackend) MyOrders(ctx context.Context, statusFilter model.OrderStatus) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myOrders, nil
}

func (s *stubBackend) AvailableOrders(ctx context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available, nil
}

func (s *stubBackend) DeliveringOrders(ctx context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries, nil
}

func (s *stubBackend) AcceptOrder(ctx context.Context, id string) error {
	return s.acceptErr
}

func (s *stubBackend) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return s.updateErr
}

func (s *stubBackend) UploadCompletionImage(ctx context.Context, id, filename string, file io.Reader) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return "data:image/jpeg;base64,xxx", nil
}

func (s *stubBackend) CompleteOrder(ctx context.Context, id string) error {
	return s.completeErr
}

func newTestController(t *testing.T, backend Backend) *Controller {
	t.Helper()

	store, err := session.NewStore(filepath.Join(t.TempDir(), "token"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	sess, err := session.New(store)
	if err != nil {
		t.Fatalf("session.New error: %v", err)
	}

	return New(backend, sess, zap.NewNop(), Options{
		EmailDomain:  "@temple.edu",
		PollInterval: 5 * time.Millisecond,
		DefaultLocation: model.Location{
			Latitude:  39.9811,
			Longitude: -75.1540,
		},
	})
}

func loginTestController(t *testing.T, c *Controller, backend *stubBackend, points int) {
	t.Helper()

	backend.mu.Lock()
	backend.loginToken = "test-token"
	backend.user = &model.User{ID: "u1", Username: "owl", Points: points}
	backend.mu.Unlock()

	if err := c.Login(context.Background(), "owl@temple.edu", "secret"); err != nil {
		t.Fatalf("Login error: %v", err)
	}
}

func TestRegisterRejectsForeignEmailWithoutNetwork(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)

	err := c.Register(context.Background(), "owl", "owl@gmail.com", "secret")
	if !errors.Is(err, validation.ErrInvalidEmailDomain) {
		t.Fatalf("expected ErrInvalidEmailDomain, got %v", err)
	}
	if backend.registerCalls != 0 {
		t.Fatalf("register must not issue a network call for a foreign email")
	}

	if err := c.Register(context.Background(), "owl", "owl@temple.edu", "secret"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if backend.registerCalls != 1 {
		t.Fatalf("registerCalls = %d, want 1", backend.registerCalls)
	}
	// Автоматического входа после регистрации нет.
	if c.Authenticated() {
		t.Fatalf("registration must not log the user in")
	}
}

func TestSubmitOrderFailsFastWithoutNetwork(t *testing.T) {
	est := model.Establishment{ID: "e1", Name: "Halal Guys"}

	tests := []struct {
		name    string
		prepare func(t *testing.T, c *Controller, backend *stubBackend)
		address string
		wantErr error
	}{
		{
			name: "empty address",
			prepare: func(t *testing.T, c *Controller, backend *stubBackend) {
				loginTestController(t, c, backend, 100)
				c.SelectEstablishment(est)
				if err := c.AddItem("Chicken Gyro", 1, 7.99, ""); err != nil {
					t.Fatalf("AddItem error: %v", err)
				}
			},
			address: "   ",
			wantErr: ErrEmptyAddress,
		},
		{
			name: "no items",
			prepare: func(t *testing.T, c *Controller, backend *stubBackend) {
				loginTestController(t, c, backend, 100)
				c.SelectEstablishment(est)
			},
			address: "1300 Cecil B. Moore Ave",
			wantErr: ErrNoItems,
		},
		{
			name: "insufficient points",
			prepare: func(t *testing.T, c *Controller, backend *stubBackend) {
				loginTestController(t, c, backend, 5)
				c.SelectEstablishment(est)
				if err := c.AddItem("Chicken Gyro", 1, 7.99, ""); err != nil {
					t.Fatalf("AddItem error: %v", err)
				}
			},
			address: "1300 Cecil B. Moore Ave",
			wantErr: ErrInsufficientPoints,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubBackend{}
			c := newTestController(t, backend)
			tt.prepare(t, c, backend)

			err := c.SubmitOrder(context.Background(), tt.address, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SubmitOrder error = %v, want %v", err, tt.wantErr)
			}
			if backend.createOrderCalls != 0 {
				t.Fatalf("failed local checks must not issue a network call")
			}
		})
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	c.SelectEstablishment(model.Establishment{ID: "e1", Name: "Halal Guys"})
	if err := c.AddItem("Chicken & Rice Platter", 2, 5.00, ""); err != nil {
		t.Fatalf("AddItem error: %v", err)
	}
	if err := c.AddItem("Baklava", 1, 3.00, ""); err != nil {
		t.Fatalf("AddItem error: %v", err)
	}

	if err := c.SubmitOrder(context.Background(), "1300 Cecil B. Moore Ave", "ring twice"); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}

	if backend.createOrderCalls != 1 {
		t.Fatalf("createOrderCalls = %d, want 1", backend.createOrderCalls)
	}
	// subtotal 13.00 => ceil(10 + 0.65) = 11 баллов.
	if backend.lastCreate.DeliveryPoints != 11 {
		t.Fatalf("DeliveryPoints = %d, want 11", backend.lastCreate.DeliveryPoints)
	}
	if backend.lastCreate.EstablishmentID != "e1" {
		t.Fatalf("EstablishmentID = %q, want e1", backend.lastCreate.EstablishmentID)
	}
	if backend.lastCreate.DeliveryLocation.Address != "1300 Cecil B. Moore Ave" {
		t.Fatalf("address = %q", backend.lastCreate.DeliveryLocation.Address)
	}
	// Координаты не задавались — должны уйти координаты по умолчанию.
	if backend.lastCreate.DeliveryLocation.Latitude != 39.9811 {
		t.Fatalf("latitude = %v, want default", backend.lastCreate.DeliveryLocation.Latitude)
	}

	// Черновик после отправки сброшен.
	if c.SelectedEstablishment() != nil || len(c.DraftItems()) != 0 {
		t.Fatalf("draft must be discarded after submit")
	}
}

func TestSelectEstablishmentDiscardsDraft(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	c.SelectEstablishment(model.Establishment{ID: "e1"})
	if err := c.AddItem("Coffee", 1, 2.00, ""); err != nil {
		t.Fatalf("AddItem error: %v", err)
	}

	c.SelectEstablishment(model.Establishment{ID: "e2"})
	if len(c.DraftItems()) != 0 {
		t.Fatalf("selecting a new establishment must discard the previous draft")
	}
	if c.SelectedEstablishment().ID != "e2" {
		t.Fatalf("selected = %q, want e2", c.SelectedEstablishment().ID)
	}
}

func TestAddItemWithoutEstablishment(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)

	if err := c.AddItem("Coffee", 1, 2.00, ""); !errors.Is(err, ErrNoEstablishment) {
		t.Fatalf("expected ErrNoEstablishment, got %v", err)
	}
}

func TestLoadCurrentUserForcesLogout(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	c.StartPolling(context.Background())

	backend.mu.Lock()
	backend.userErr = &api.Error{StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}
	backend.mu.Unlock()

	err := c.LoadCurrentUser(context.Background())
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if c.Authenticated() {
		t.Fatalf("session must be cleared after a 401 on the profile fetch")
	}
	if c.User() != nil {
		t.Fatalf("user snapshot must be absent after forced logout")
	}
	if c.Polling() {
		t.Fatalf("polling must stop on forced logout")
	}
}

func TestLogoutIdempotentAndStopsPolling(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	c.StartPolling(context.Background())
	if !c.Polling() {
		t.Fatalf("polling must be running after StartPolling")
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if c.Polling() {
		t.Fatalf("exactly zero polling timers must remain after logout")
	}
	if c.Authenticated() || c.User() != nil {
		t.Fatalf("token and profile must be absent after logout")
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("second Logout error: %v", err)
	}
}

func TestAcceptOrderConflictLeavesServerReason(t *testing.T) {
	backend := &stubBackend{
		available: []model.Order{{ID: "o1", Status: model.OrderStatusPending}},
	}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	if err := c.RefreshAvailableOrders(context.Background()); err != nil {
		t.Fatalf("RefreshAvailableOrders error: %v", err)
	}

	// Другой курьер успел забрать заказ: сервер отвечает отказом.
	backend.acceptErr = &api.Error{StatusCode: http.StatusBadRequest, Detail: "Order is not available for acceptance"}
	backend.mu.Lock()
	backend.available = nil
	backend.mu.Unlock()

	err := c.AcceptOrder(context.Background(), "o1")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.Error, got %v", err)
	}
	if apiErr.Detail != "Order is not available for acceptance" {
		t.Fatalf("server reason must be surfaced verbatim, got %q", apiErr.Detail)
	}

	// Список остаётся устаревшим до следующего обновления.
	if len(c.AvailableOrders()) != 1 {
		t.Fatalf("available list must stay stale until the next refresh")
	}

	if err := c.RefreshAvailableOrders(context.Background()); err != nil {
		t.Fatalf("RefreshAvailableOrders error: %v", err)
	}
	if len(c.AvailableOrders()) != 0 {
		t.Fatalf("the claimed order must disappear after refresh")
	}
}

func TestCompleteOrderRejectedBeforeDelivered(t *testing.T) {
	backend := &stubBackend{
		myOrders: []model.Order{{ID: "o1", Status: model.OrderStatusPickedUp}},
	}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	backend.completeErr = &api.Error{StatusCode: http.StatusBadRequest, Detail: "Order must be delivered before completion"}

	err := c.CompleteOrder(context.Background(), "o1")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.Error, got %v", err)
	}
	if apiErr.Detail != "Order must be delivered before completion" {
		t.Fatalf("server reason must be surfaced verbatim, got %q", apiErr.Detail)
	}

	// Статус не меняется локально: следующее обновление приносит тот же снимок.
	if err := c.RefreshMyOrders(context.Background()); err != nil {
		t.Fatalf("RefreshMyOrders error: %v", err)
	}
	if c.MyOrders()[0].Status != model.OrderStatusPickedUp {
		t.Fatalf("status = %q, want picked_up", c.MyOrders()[0].Status)
	}
}

func TestOrderDetailResolvesParticipants(t *testing.T) {
	backend := &stubBackend{
		orderByID: &model.Order{
			ID:              "o1",
			EstablishmentID: "e1",
			DelivererID:     "u2",
			Status:          model.OrderStatusAccepted,
		},
		estByID:  &model.Establishment{ID: "e1", Name: "Halal Guys"},
		userByID: &model.User{ID: "u2", Username: "courier"},
	}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	detail, err := c.OrderDetail(context.Background(), "o1")
	if err != nil {
		t.Fatalf("OrderDetail error: %v", err)
	}
	if detail.Order.ID != "o1" || detail.Order.Status != model.OrderStatusAccepted {
		t.Fatalf("unexpected order: %+v", detail.Order)
	}
	if detail.Establishment == nil || detail.Establishment.Name != "Halal Guys" {
		t.Fatalf("unexpected establishment: %+v", detail.Establishment)
	}
	if detail.Deliverer == nil || detail.Deliverer.Username != "courier" {
		t.Fatalf("unexpected deliverer: %+v", detail.Deliverer)
	}
}

func TestOrderDetailWithoutDeliverer(t *testing.T) {
	backend := &stubBackend{
		orderByID: &model.Order{
			ID:              "o1",
			EstablishmentID: "e1",
			Status:          model.OrderStatusPending,
		},
		// Профили участников недоступны — сам заказ всё равно показывается.
		estByIDErr: &api.Error{StatusCode: http.StatusNotFound, Detail: "Establishment not found"},
	}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	detail, err := c.OrderDetail(context.Background(), "o1")
	if err != nil {
		t.Fatalf("OrderDetail error: %v", err)
	}
	if detail.Establishment != nil || detail.Deliverer != nil {
		t.Fatalf("participants must stay nil when lookups fail: %+v", detail)
	}
}

func TestSearchBlankQueryEqualsFullList(t *testing.T) {
	backend := &stubBackend{}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	// Пустой и пробельный запрос идут по пути полного списка, а не поиска.
	for _, query := range []string{"", "   "} {
		if err := c.SearchEstablishments(context.Background(), query); err != nil {
			t.Fatalf("SearchEstablishments(%q) error: %v", query, err)
		}
		list := c.Establishments()
		if len(list) != 1 || list[0].ID != "full-list" {
			t.Fatalf("blank query must return the unfiltered list, got %+v", list)
		}
	}

	if err := c.SearchEstablishments(context.Background(), "coffee"); err != nil {
		t.Fatalf("SearchEstablishments error: %v", err)
	}
	list := c.Establishments()
	if len(list) != 1 || list[0].ID != "filtered" {
		t.Fatalf("non-blank query must use the search endpoint, got %+v", list)
	}
}

type blockingBackend struct {
	*stubBackend
	release chan struct{}
}

func (b *blockingBackend) Establishments(ctx context.Context, loc *model.Location) ([]model.Establishment, error) {
	<-b.release
	return nil, nil
}

func TestBusyDuringRequest(t *testing.T) {
	backend := &blockingBackend{
		stubBackend: &stubBackend{},
		release:     make(chan struct{}),
	}
	c := newTestController(t, backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.RefreshEstablishments(context.Background())
	}()

	// Индикатор загрузки держится, пока запрос в полёте.
	deadline := time.After(time.Second)
	for !c.Busy() {
		select {
		case <-deadline:
			t.Fatalf("controller never reported busy")
		case <-time.After(time.Millisecond):
		}
	}

	close(backend.release)
	<-done

	if c.Busy() {
		t.Fatalf("busy indicator must be released after the request finishes")
	}
}

func TestPollingRefreshesOrders(t *testing.T) {
	backend := &stubBackend{
		myOrders: []model.Order{{ID: "o1", Status: model.OrderStatusPending}},
	}
	c := newTestController(t, backend)
	loginTestController(t, c, backend, 100)

	c.StartPolling(context.Background())
	defer c.StopPolling()

	deadline := time.After(time.Second)
	for len(c.MyOrders()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("polling never refreshed the order list")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
