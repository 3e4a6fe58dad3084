// Package view содержит чистую проекцию состояния заказов в модели отображения.
// Пакет не знает про рендеринг и сеть, поэтому проверяется без окружения.
package view

import (
	"strings"
	"time"

	"github.com/mmeshcher/delivery-client/internal/model"
)

// Context определяет, в каком списке отображается заказ. Контексты взаимно
// исключающие: одна карточка принадлежит ровно одному контексту.
type Context int

const (
	// ContextMyOrder — заказы текущего пользователя как заказчика.
	ContextMyOrder Context = iota
	// ContextAvailable — неразобранные заказы, которые может принять любой аутентифицированный пользователь.
	ContextAvailable
	// ContextMyDelivery — заказы, которые текущий пользователь доставляет.
	ContextMyDelivery
)

// Action описывает действие, допустимое для карточки заказа. Клиент предлагает
// только переход вперёд из наблюдаемого статуса; принять или отклонить переход
// решает сервер.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionMarkPickedUp   Action = "pickup"
	ActionUploadPhoto    Action = "photo"
	ActionConfirmReceipt Action = "confirm"
	ActionViewPhoto      Action = "view-photo"
)

// Card представляет один заказ, подготовленный к отображению.
// DelivererID, AcceptedAt и CompletedAt пусты, пока сервер их не заполнил.
type Card struct {
	OrderID             string
	ShortID             string
	Status              model.OrderStatus
	StatusLabel         string
	Items               []model.OrderItem
	DeliveryAddress     string
	SpecialInstructions string
	DeliveryPoints      int
	CreatedAt           string
	DelivererID         string
	AcceptedAt          string
	CompletedAt         string
	PhotoURL            string
	Actions             []Action
}

const timeLayout = "2006-01-02 15:04"

// ProjectOrder строит карточку заказа для указанного контекста.
func ProjectOrder(o model.Order, ctx Context) Card {
	return Card{
		OrderID:             o.ID,
		ShortID:             shortID(o.ID),
		Status:              o.Status,
		StatusLabel:         statusLabel(o.Status),
		Items:               o.Items,
		DeliveryAddress:     o.DeliveryLocation.Address,
		SpecialInstructions: o.SpecialInstructions,
		DeliveryPoints:      o.DeliveryPoints,
		CreatedAt:           o.CreatedAt.Format(timeLayout),
		DelivererID:         o.DelivererID,
		AcceptedAt:          formatOptionalTime(o.AcceptedAt),
		CompletedAt:         formatOptionalTime(o.CompletedAt),
		PhotoURL:            o.CompletionImageURL,
		Actions:             actionsFor(o, ctx),
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

// ProjectOrders строит карточки для списка заказов в одном контексте.
func ProjectOrders(orders []model.Order, ctx Context) []Card {
	cards := make([]Card, 0, len(orders))
	for _, o := range orders {
		cards = append(cards, ProjectOrder(o, ctx))
	}
	return cards
}

// actionsFor возвращает допустимые действия. Из конечных статусов
// (completed, cancelled) действий нет.
func actionsFor(o model.Order, ctx Context) []Action {
	if o.Status.IsTerminal() {
		return nil
	}

	switch ctx {
	case ContextAvailable:
		if o.Status == model.OrderStatusPending {
			return []Action{ActionAccept}
		}
	case ContextMyDelivery:
		switch o.Status {
		case model.OrderStatusAccepted:
			return []Action{ActionMarkPickedUp}
		case model.OrderStatusPickedUp:
			return []Action{ActionUploadPhoto}
		}
	case ContextMyOrder:
		if o.Status == model.OrderStatusDelivered {
			// Подтверждение получения доступно и без фото: сервер не требует
			// фото для завершения заказа. Просмотр фото предлагается только
			// когда оно есть.
			if o.CompletionImageURL != "" {
				return []Action{ActionViewPhoto, ActionConfirmReceipt}
			}
			return []Action{ActionConfirmReceipt}
		}
	}

	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func statusLabel(s model.OrderStatus) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}
