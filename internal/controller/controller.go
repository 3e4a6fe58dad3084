// Package controller реализует клиентскую логику сервиса кампусной доставки:
// сессию, выбор заведения, черновик заказа и жизненный цикл заказов.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-client/internal/api"
	"github.com/mmeshcher/delivery-client/internal/draft"
	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/poller"
	"github.com/mmeshcher/delivery-client/internal/session"
	"github.com/mmeshcher/delivery-client/internal/validation"
)

// ErrEmptyAddress возвращается при отправке заказа без адреса доставки.
var (
	ErrEmptyAddress = errors.New("delivery address must not be empty")
	// ErrNoItems возвращается при отправке пустого черновика.
	ErrNoItems = errors.New("order has no items")
	// ErrInsufficientPoints возвращается, когда баллов пользователя не хватает на доставку.
	ErrInsufficientPoints = errors.New("insufficient points for this delivery")
	// ErrNoEstablishment возвращается при операции, требующей выбранного заведения.
	ErrNoEstablishment = errors.New("no establishment selected")
	// ErrNotAuthenticated возвращается при операции без активной сессии.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Backend описывает операции API, используемые контроллером.
type Backend interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	Establishments(ctx context.Context, loc *model.Location) ([]model.Establishment, error)
	SearchEstablishments(ctx context.Context, query string, loc *model.Location) ([]model.Establishment, error)
	EstablishmentByID(ctx context.Context, id string) (*model.Establishment, error)
	EstablishmentMenu(ctx context.Context, id string) ([]model.MenuItem, error)
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*model.Order, error)
	MyOrders(ctx context.Context, statusFilter model.OrderStatus) ([]model.Order, error)
	OrderByID(ctx context.Context, id string) (*model.Order, error)
	AvailableOrders(ctx context.Context) ([]model.Order, error)
	DeliveringOrders(ctx context.Context) ([]model.Order, error)
	AcceptOrder(ctx context.Context, id string) error
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	UploadCompletionImage(ctx context.Context, id, filename string, file io.Reader) (string, error)
	CompleteOrder(ctx context.Context, id string) error
}

// Options содержит параметры контроллера.
type Options struct {
	// EmailDomain — обязательный суффикс email учебного заведения для регистрации.
	EmailDomain string
	// PollInterval — период фонового обновления списков заказов.
	PollInterval time.Duration
	// DefaultLocation используется как точка доставки, пока координаты не заданы.
	DefaultLocation model.Location
}

// Controller владеет состоянием клиента и опосредует вызовы между
// отображением и backend.
type Controller struct {
	backend Backend
	session *session.Session
	logger  *zap.Logger
	opts    Options
	poll    *poller.Poller

	busy atomic.Int64

	mu             sync.Mutex
	location       *model.Location
	selected       *model.Establishment
	orderDraft     *draft.Draft
	establishments []model.Establishment
	myOrders       []model.Order
	available      []model.Order
	deliveries     []model.Order
	deliverTab     bool
}

// New создаёт контроллер.
func New(backend Backend, sess *session.Session, logger *zap.Logger, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}

	c := &Controller{
		backend: backend,
		session: sess,
		logger:  logger,
		opts:    opts,
	}
	c.poll = poller.New(opts.PollInterval, c.pollOnce)
	return c
}

// Busy сообщает, выполняется ли сейчас хотя бы один сетевой запрос.
// Используется отображением как индикатор загрузки.
func (c *Controller) Busy() bool {
	return c.busy.Load() > 0
}

func (c *Controller) beginRequest() func() {
	c.busy.Add(1)
	return func() { c.busy.Add(-1) }
}

// Register создаёт учётную запись. Email вне домена учебного заведения
// отклоняется без сетевого вызова; автоматического входа после успеха нет.
func (c *Controller) Register(ctx context.Context, username, email, password string) error {
	if err := validation.CheckEmailDomain(email, c.opts.EmailDomain); err != nil {
		return err
	}

	done := c.beginRequest()
	defer done()

	if _, err := c.backend.Register(ctx, username, email, password); err != nil {
		return err
	}
	return nil
}

// Login обменивает учётные данные на токен и загружает пользовательский контекст.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	done := c.beginRequest()
	defer done()

	token, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := c.session.SetToken(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	return c.LoadCurrentUser(ctx)
}

// LoadCurrentUser запрашивает профиль по сохранённому токену. Любой неуспех,
// включая просроченный токен, приводит к полному выходу: механизма обновления
// токена нет, частично деградировавшее состояние недопустимо.
func (c *Controller) LoadCurrentUser(ctx context.Context) error {
	if !c.session.Authenticated() {
		return ErrNotAuthenticated
	}

	done := c.beginRequest()
	defer done()

	user, err := c.backend.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("profile fetch failed, forcing logout", zap.Error(err))
		if logoutErr := c.Logout(); logoutErr != nil {
			c.logger.Error("logout error", zap.Error(logoutErr))
		}
		return err
	}

	c.session.SetUser(user)
	return nil
}

// Logout сбрасывает сессию, останавливает фоновый опрос и очищает состояние.
// Идемпотентен.
func (c *Controller) Logout() error {
	c.poll.Stop()

	c.mu.Lock()
	c.location = nil
	c.selected = nil
	c.orderDraft = nil
	c.establishments = nil
	c.myOrders = nil
	c.available = nil
	c.deliveries = nil
	c.deliverTab = false
	c.mu.Unlock()

	return c.session.Clear()
}

// User возвращает снимок профиля текущего пользователя или nil.
func (c *Controller) User() *model.User {
	return c.session.User()
}

// Authenticated сообщает, есть ли активная сессия.
func (c *Controller) Authenticated() bool {
	return c.session.Authenticated()
}

// SetLocation запоминает координаты пользователя на время сессии.
// Непрерывного отслеживания нет: координаты запрашиваются один раз по запросу.
func (c *Controller) SetLocation(lat, lon float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = &model.Location{Latitude: lat, Longitude: lon}
}

// Location возвращает сохранённые координаты или nil.
func (c *Controller) Location() *model.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// RefreshEstablishments перечитывает список заведений, учитывая координаты.
func (c *Controller) RefreshEstablishments(ctx context.Context) error {
	done := c.beginRequest()
	defer done()

	list, err := c.backend.Establishments(ctx, c.Location())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.establishments = list
	c.mu.Unlock()
	return nil
}

// SearchEstablishments ищет заведения по строке запроса. Пустой или пробельный
// запрос эквивалентен полному списку. Запросы не отменяются и не дебаунсятся;
// поздний медленный ответ может перезаписать более свежий.
func (c *Controller) SearchEstablishments(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return c.RefreshEstablishments(ctx)
	}

	done := c.beginRequest()
	defer done()

	list, err := c.backend.SearchEstablishments(ctx, query, c.Location())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.establishments = list
	c.mu.Unlock()
	return nil
}

// Establishments возвращает последний полученный список заведений.
func (c *Controller) Establishments() []model.Establishment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.establishments
}

// SelectEstablishment выбирает заведение и начинает для него пустой черновик.
// Несохранённый черновик предыдущего заведения всегда отбрасывается.
func (c *Controller) SelectEstablishment(e model.Establishment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = &e
	c.orderDraft = draft.New(&e)
}

// SelectedEstablishment возвращает выбранное заведение или nil.
func (c *Controller) SelectedEstablishment() *model.Establishment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Menu возвращает меню выбранного заведения.
func (c *Controller) Menu(ctx context.Context) ([]model.MenuItem, error) {
	est := c.SelectedEstablishment()
	if est == nil {
		return nil, ErrNoEstablishment
	}

	done := c.beginRequest()
	defer done()

	return c.backend.EstablishmentMenu(ctx, est.ID)
}

// AddItem добавляет позицию в черновик текущего заведения.
func (c *Controller) AddItem(name string, quantity int, price float64, notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderDraft == nil {
		return ErrNoEstablishment
	}
	return c.orderDraft.AddItem(name, quantity, price, notes)
}

// RemoveItem удаляет позицию черновика по индексу.
func (c *Controller) RemoveItem(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderDraft == nil {
		return ErrNoEstablishment
	}
	return c.orderDraft.RemoveItem(index)
}

// DraftItems возвращает позиции черновика.
func (c *Controller) DraftItems() []model.OrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderDraft == nil {
		return nil
	}
	return c.orderDraft.Items()
}

// DraftTotals возвращает сумму черновика и требуемые баллы доставки.
func (c *Controller) DraftTotals() draft.Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderDraft == nil {
		return draft.Totals{}
	}
	return c.orderDraft.Totals()
}

// SubmitOrder отправляет черновик. Пустой адрес, пустой список позиций,
// нехватка баллов и отсутствие выбранного заведения отсекаются до сетевого
// вызова. После успеха черновик сбрасывается, списки заказов и профиль
// перечитываются: баланс уже списан сервером.
func (c *Controller) SubmitOrder(ctx context.Context, address, instructions string) error {
	address = strings.TrimSpace(address)

	c.mu.Lock()
	d := c.orderDraft
	est := c.selected
	loc := c.location
	c.mu.Unlock()

	if address == "" {
		return ErrEmptyAddress
	}
	if d == nil || len(d.Items()) == 0 {
		return ErrNoItems
	}

	totals := d.Totals()
	user := c.session.User()
	if user == nil || user.Points < totals.RequiredPoints {
		return ErrInsufficientPoints
	}
	if est == nil {
		return ErrNoEstablishment
	}

	deliveryLoc := c.opts.DefaultLocation
	if loc != nil {
		deliveryLoc = *loc
	}
	deliveryLoc.Address = address

	done := c.beginRequest()
	defer done()

	_, err := c.backend.CreateOrder(ctx, api.CreateOrderRequest{
		EstablishmentID:     est.ID,
		Items:               d.Items(),
		DeliveryLocation:    deliveryLoc,
		SpecialInstructions: strings.TrimSpace(instructions),
		DeliveryPoints:      totals.RequiredPoints,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.selected = nil
	c.orderDraft = nil
	c.mu.Unlock()

	if err := c.RefreshMyOrders(ctx); err != nil {
		c.logger.Error("refresh orders after submit", zap.Error(err))
	}
	return c.LoadCurrentUser(ctx)
}

// RefreshMyOrders перечитывает заказы текущего пользователя как заказчика.
func (c *Controller) RefreshMyOrders(ctx context.Context) error {
	done := c.beginRequest()
	defer done()

	orders, err := c.backend.MyOrders(ctx, "")
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.myOrders = orders
	c.mu.Unlock()
	return nil
}

// RefreshAvailableOrders перечитывает список неразобранных заказов.
func (c *Controller) RefreshAvailableOrders(ctx context.Context) error {
	done := c.beginRequest()
	defer done()

	orders, err := c.backend.AvailableOrders(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.available = orders
	c.mu.Unlock()
	return nil
}

// RefreshDeliveries перечитывает активные доставки текущего пользователя.
func (c *Controller) RefreshDeliveries(ctx context.Context) error {
	done := c.beginRequest()
	defer done()

	orders, err := c.backend.DeliveringOrders(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.deliveries = orders
	c.mu.Unlock()
	return nil
}

// MyOrders возвращает последний полученный список заказов пользователя.
func (c *Controller) MyOrders() []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.myOrders
}

// AvailableOrders возвращает последний полученный список неразобранных заказов.
func (c *Controller) AvailableOrders() []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Deliveries возвращает последний полученный список активных доставок.
func (c *Controller) Deliveries() []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries
}

// OrderDetail содержит свежий снимок заказа и публичные профили его участников.
// Deliverer равен nil, пока заказ никто не принял.
type OrderDetail struct {
	Order         model.Order
	Establishment *model.Establishment
	Deliverer     *model.User
}

// OrderDetail перечитывает один заказ и подтягивает заведение и профиль
// курьера. Недоступность профилей не скрывает сам заказ: соответствующие
// поля остаются nil.
func (c *Controller) OrderDetail(ctx context.Context, id string) (*OrderDetail, error) {
	done := c.beginRequest()
	defer done()

	order, err := c.backend.OrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{Order: *order}

	if est, err := c.backend.EstablishmentByID(ctx, order.EstablishmentID); err != nil {
		c.logger.Debug("establishment lookup failed", zap.Error(err))
	} else {
		detail.Establishment = est
	}

	if order.DelivererID != "" {
		if deliverer, err := c.backend.UserByID(ctx, order.DelivererID); err != nil {
			c.logger.Debug("deliverer lookup failed", zap.Error(err))
		} else {
			detail.Deliverer = deliverer
		}
	}

	return detail, nil
}

// AcceptOrder запрашивает принятие заказа. Гонку двух курьеров за один заказ
// разрешает сервер; при отказе локальные списки остаются устаревшими до
// следующего обновления.
func (c *Controller) AcceptOrder(ctx context.Context, id string) error {
	done := c.beginRequest()
	defer done()

	if err := c.backend.AcceptOrder(ctx, id); err != nil {
		return err
	}

	if err := c.RefreshAvailableOrders(ctx); err != nil {
		c.logger.Error("refresh available after accept", zap.Error(err))
	}
	return c.RefreshDeliveries(ctx)
}

// MarkPickedUp запрашивает переход принятого заказа в picked_up.
func (c *Controller) MarkPickedUp(ctx context.Context, id string) error {
	done := c.beginRequest()
	defer done()

	if err := c.backend.UpdateOrderStatus(ctx, id, model.OrderStatusPickedUp); err != nil {
		return err
	}
	return c.RefreshDeliveries(ctx)
}

// UploadCompletionImage загружает фото подтверждения. Успешная загрузка сама
// переводит заказ в delivered на сервере; локальный статус не меняется,
// вместо этого перечитывается список доставок.
func (c *Controller) UploadCompletionImage(ctx context.Context, id, filename string, file io.Reader) error {
	done := c.beginRequest()
	defer done()

	if _, err := c.backend.UploadCompletionImage(ctx, id, filename, file); err != nil {
		return err
	}
	return c.RefreshDeliveries(ctx)
}

// CompleteOrder подтверждает получение доставленного заказа и перечитывает
// заказы и профиль: перевод баллов выполняет сервер, клиент балансы не трогает.
func (c *Controller) CompleteOrder(ctx context.Context, id string) error {
	done := c.beginRequest()
	defer done()

	if err := c.backend.CompleteOrder(ctx, id); err != nil {
		return err
	}

	if err := c.RefreshMyOrders(ctx); err != nil {
		c.logger.Error("refresh orders after complete", zap.Error(err))
	}
	return c.LoadCurrentUser(ctx)
}

// SetDeliverTabActive отмечает, открыта ли вкладка доставок: фоновый опрос
// дополнительно обновляет доставки только при открытой вкладке.
func (c *Controller) SetDeliverTabActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliverTab = active
}

// StartPolling запускает фоновое обновление списков. Предыдущий опрос, если
// был, останавливается: живым остаётся не более одного таймера.
func (c *Controller) StartPolling(ctx context.Context) {
	c.poll.Start(ctx)
}

// StopPolling останавливает фоновое обновление.
func (c *Controller) StopPolling() {
	c.poll.Stop()
}

// Polling сообщает, идёт ли фоновый опрос.
func (c *Controller) Polling() bool {
	return c.poll.Running()
}

func (c *Controller) pollOnce(ctx context.Context) {
	if !c.session.Authenticated() {
		return
	}

	if err := c.RefreshMyOrders(ctx); err != nil {
		c.logger.Debug("poll my orders", zap.Error(err))
	}

	c.mu.Lock()
	deliverTab := c.deliverTab
	c.mu.Unlock()

	if deliverTab {
		if err := c.RefreshDeliveries(ctx); err != nil {
			c.logger.Debug("poll deliveries", zap.Error(err))
		}
	}
}
