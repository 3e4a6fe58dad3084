// Package model содержит типизированные сущности клиента сервиса кампусной доставки.
package model

import "time"

// User представляет профиль пользователя и его баланс баллов.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// Location описывает географическую точку с адресом.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Establishment описывает заведение, доступное для заказа.
// Снимок данных сервера, на клиенте не изменяется.
type Establishment struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Location Location `json:"location"`
	ImageURL string   `json:"image_url"`
	IsActive bool     `json:"is_active"`
	// Distance заполняется сервером только при запросе с координатами, в милях.
	Distance *float64 `json:"distance,omitempty"`
}

// MenuItem описывает позицию меню заведения.
type MenuItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// OrderStatus описывает статус заказа. Машина состояний принадлежит серверу,
// клиент только отображает полученное значение.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusPickedUp  OrderStatus = "picked_up"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderItem описывает одну позицию заказа.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Notes    string  `json:"notes,omitempty"`
}

// Order описывает заказ на доставку. Принадлежит серверу; клиент запрашивает
// переходы статусов, но никогда не вычисляет их локально.
type Order struct {
	ID                  string      `json:"id"`
	CustomerID          string      `json:"customer_id"`
	DelivererID         string      `json:"deliverer_id,omitempty"`
	EstablishmentID     string      `json:"establishment_id"`
	Items               []OrderItem `json:"items"`
	DeliveryLocation    Location    `json:"delivery_location"`
	SpecialInstructions string      `json:"special_instructions,omitempty"`
	DeliveryPoints      int         `json:"delivery_points"`
	Status              OrderStatus `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	AcceptedAt          *time.Time  `json:"accepted_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	CompletionImageURL  string      `json:"completion_image_url,omitempty"`
}
