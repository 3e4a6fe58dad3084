// Package api предоставляет типизированный клиент REST API сервиса доставки.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmeshcher/delivery-client/internal/model"
)

// ErrUnauthorized возвращается при ответе 401: сессия невосстановима без
// повторной аутентификации.
var ErrUnauthorized = errors.New("unauthorized")

// Error описывает отказ сервера с переданной им причиной.
type Error struct {
	StatusCode int
	Detail     string
}

// Error возвращает причину отказа в формулировке сервера.
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// Is позволяет проверять ответ 401 через errors.Is(err, ErrUnauthorized).
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TokenSource выдаёт текущий токен сессии. Пустая строка означает
// неаутентифицированное состояние.
type TokenSource interface {
	Token() string
}

// Client инкапсулирует HTTP-взаимодействие с backend сервиса доставки.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент API по указанному базовому адресу. Токен из tokens
// добавляется к каждому запросу, пока он непустой.
func NewClient(baseURL string, tokens TokenSource) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &authTransport{
				base:   http.DefaultTransport,
				tokens: tokens,
			},
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register создаёт учётную запись. Автоматического входа после регистрации нет.
func (c *Client) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	var user model.User
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", nil, registerRequest{
		Username: username,
		Email:    email,
		Password: password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login обменивает учётные данные на токен сессии.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, credentialsRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return resp.AccessToken, nil
}

// CurrentUser запрашивает профиль владельца токена. Ответ 401 означает
// невосстановимую сессию.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByID запрашивает публичный профиль пользователя по идентификатору.
func (c *Client) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/users/"+url.PathEscape(id), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func locationQuery(loc *model.Location) url.Values {
	q := url.Values{}
	if loc != nil {
		q.Set("lat", fmt.Sprintf("%g", loc.Latitude))
		q.Set("lon", fmt.Sprintf("%g", loc.Longitude))
	}
	return q
}

// Establishments возвращает список заведений; при известных координатах
// сервер сортирует его по расстоянию.
func (c *Client) Establishments(ctx context.Context, loc *model.Location) ([]model.Establishment, error) {
	var list []model.Establishment
	if err := c.doJSON(ctx, http.MethodGet, "/api/establishments/", locationQuery(loc), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchEstablishments возвращает заведения, отфильтрованные сервером по строке запроса.
func (c *Client) SearchEstablishments(ctx context.Context, query string, loc *model.Location) ([]model.Establishment, error) {
	q := locationQuery(loc)
	q.Set("query", query)

	var list []model.Establishment
	if err := c.doJSON(ctx, http.MethodGet, "/api/establishments/search", q, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// EstablishmentByID возвращает одно заведение.
func (c *Client) EstablishmentByID(ctx context.Context, id string) (*model.Establishment, error) {
	var est model.Establishment
	if err := c.doJSON(ctx, http.MethodGet, "/api/establishments/"+url.PathEscape(id), nil, nil, &est); err != nil {
		return nil, err
	}
	return &est, nil
}

// EstablishmentMenu возвращает позиции меню заведения.
func (c *Client) EstablishmentMenu(ctx context.Context, id string) ([]model.MenuItem, error) {
	var menu []model.MenuItem
	if err := c.doJSON(ctx, http.MethodGet, "/api/establishments/"+url.PathEscape(id)+"/menu", nil, nil, &menu); err != nil {
		return nil, err
	}
	return menu, nil
}

// CreateOrderRequest описывает тело запроса на создание заказа.
type CreateOrderRequest struct {
	EstablishmentID     string            `json:"establishment_id"`
	Items               []model.OrderItem `json:"items"`
	DeliveryLocation    model.Location    `json:"delivery_location"`
	SpecialInstructions string            `json:"special_instructions,omitempty"`
	DeliveryPoints      int               `json:"delivery_points"`
}

// CreateOrder размещает заказ на доставку.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	var order model.Order
	if err := c.doJSON(ctx, http.MethodPost, "/api/orders/", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// MyOrders возвращает заказы текущего пользователя как заказчика.
// Непустой statusFilter ограничивает выборку одним статусом.
func (c *Client) MyOrders(ctx context.Context, statusFilter model.OrderStatus) ([]model.Order, error) {
	q := url.Values{}
	if statusFilter != "" {
		q.Set("status_filter", string(statusFilter))
	}

	var orders []model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders/my-orders", q, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// AvailableOrders возвращает неразобранные заказы, доступные для принятия.
func (c *Client) AvailableOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders/available", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// DeliveringOrders возвращает заказы, которые текущий пользователь доставляет.
func (c *Client) DeliveringOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders/delivering", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderByID возвращает один заказ.
func (c *Client) OrderByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AcceptOrder запрашивает принятие заказа к доставке. Конфликт гонки за заказ
// разрешает сервер; клиент передаёт его отказ вызывающему без изменений.
func (c *Client) AcceptOrder(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/accept", nil, nil, nil)
}

type statusUpdateRequest struct {
	Status model.OrderStatus `json:"status"`
}

// UpdateOrderStatus запрашивает переход заказа в указанный статус.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return c.doJSON(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/update-status", nil, statusUpdateRequest{Status: status}, nil)
}

// CompleteOrder подтверждает получение заказа заказчиком; перевод баллов
// выполняет сервер.
func (c *Client) CompleteOrder(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/complete", nil, nil, nil)
}

type uploadImageResponse struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url"`
}

// imageContentType определяет Content-Type фото по расширению файла.
// Сервер принимает только части с типом image/*, поэтому для неизвестных
// расширений используется image/jpeg.
func imageContentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

// UploadCompletionImage загружает фото подтверждения доставки. Успешная
// загрузка на стороне сервера переводит заказ в статус delivered; клиент
// не выставляет статус сам, а перечитывает списки.
func (c *Client) UploadCompletionImage(ctx context.Context, id, filename string, file io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoted))
	header.Set("Content-Type", imageContentType(filename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL := c.baseURL + "/api/orders/" + url.PathEscape(id) + "/upload-image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newServerError(resp)
	}

	var result uploadImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.ImageURL, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newServerError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func newServerError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil {
		var body errorResponse
		if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Detail != "" {
			apiErr.Detail = body.Detail
		}
	}

	return apiErr
}
