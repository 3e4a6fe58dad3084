// Package ui содержит терминальный адаптер отображения: рендеринг моделей
// представления и интерактивный цикл команд. Вся логика состояния живёт в
// контроллере; здесь только вывод и разбор ввода.
package ui

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mmeshcher/delivery-client/internal/controller"
	"github.com/mmeshcher/delivery-client/internal/draft"
	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/view"
)

// Renderer печатает модели представления в текстовый поток.
type Renderer struct {
	out io.Writer
}

// NewRenderer создаёт рендерер, пишущий в out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Notice выводит недолговечное уведомление. Ошибки и подтверждения не
// блокируют дальнейший ввод.
func (r *Renderer) Notice(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// User выводит имя и баланс текущего пользователя.
func (r *Renderer) User(u *model.User) {
	if u == nil {
		fmt.Fprintln(r.out, "not logged in")
		return
	}
	fmt.Fprintf(r.out, "%s — %d points\n", u.Username, u.Points)
}

// Establishments выводит нумерованный список заведений.
func (r *Renderer) Establishments(list []model.Establishment) {
	if len(list) == 0 {
		fmt.Fprintln(r.out, "no establishments found")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for i, e := range list {
		distance := ""
		if e.Distance != nil {
			distance = fmt.Sprintf("%.1f mi", *e.Distance)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, e.Name, e.Category, e.Location.Address, distance)
	}
	w.Flush()
}

// Menu выводит меню заведения.
func (r *Renderer) Menu(items []model.MenuItem) {
	if len(items) == 0 {
		fmt.Fprintln(r.out, "no menu available")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, item := range items {
		fmt.Fprintf(w, "%s\t$%.2f\t%s\n", item.Name, item.Price, item.Category)
	}
	w.Flush()
}

// Draft выводит позиции черновика и его итоги.
func (r *Renderer) Draft(items []model.OrderItem, totals draft.Totals) {
	if len(items) == 0 {
		fmt.Fprintln(r.out, "draft is empty")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for i, item := range items {
		note := ""
		if item.Notes != "" {
			note = "(" + item.Notes + ")"
		}
		fmt.Fprintf(w, "%d\t%dx %s\t$%.2f\t%s\n", i+1, item.Quantity, item.Name, float64(item.Quantity)*item.Price, note)
	}
	w.Flush()

	fmt.Fprintf(r.out, "subtotal: $%.2f, delivery: %d points\n", totals.Subtotal(), totals.RequiredPoints)
}

// Cards выводит карточки заказов с их допустимыми действиями.
func (r *Renderer) Cards(title string, cards []view.Card) {
	fmt.Fprintf(r.out, "== %s ==\n", title)
	if len(cards) == 0 {
		fmt.Fprintln(r.out, "(empty)")
		return
	}

	for i, card := range cards {
		fmt.Fprintf(r.out, "%d. order #%s  [%s]  %d points  %s\n", i+1, card.ShortID, card.StatusLabel, card.DeliveryPoints, card.CreatedAt)
		for _, item := range card.Items {
			fmt.Fprintf(r.out, "   %dx %s ($%.2f)\n", item.Quantity, item.Name, item.Price)
		}
		fmt.Fprintf(r.out, "   deliver to: %s\n", card.DeliveryAddress)
		if card.SpecialInstructions != "" {
			fmt.Fprintf(r.out, "   instructions: %s\n", card.SpecialInstructions)
		}
		if card.AcceptedAt != "" {
			fmt.Fprintf(r.out, "   accepted: %s\n", card.AcceptedAt)
		}
		if card.CompletedAt != "" {
			fmt.Fprintf(r.out, "   completed: %s\n", card.CompletedAt)
		}
		if len(card.Actions) > 0 {
			fmt.Fprintf(r.out, "   actions: %s\n", actionLabels(card.Actions))
		}
	}
}

// OrderDetail выводит один заказ вместе с заведением и профилем курьера.
func (r *Renderer) OrderDetail(detail *controller.OrderDetail, card view.Card) {
	r.Cards("order "+card.ShortID, []view.Card{card})
	if detail.Establishment != nil {
		fmt.Fprintf(r.out, "   from: %s (%s)\n", detail.Establishment.Name, detail.Establishment.Location.Address)
	}
	if detail.Deliverer != nil {
		fmt.Fprintf(r.out, "   deliverer: %s\n", detail.Deliverer.Username)
	} else if card.DelivererID != "" {
		fmt.Fprintf(r.out, "   deliverer: %s\n", card.DelivererID)
	}
}

func actionLabels(actions []view.Action) string {
	labels := map[view.Action]string{
		view.ActionAccept:         "accept",
		view.ActionMarkPickedUp:   "pickup",
		view.ActionUploadPhoto:    "photo <file>",
		view.ActionConfirmReceipt: "confirm",
		view.ActionViewPhoto:      "view-photo",
	}

	out := ""
	for i, a := range actions {
		if i > 0 {
			out += ", "
		}
		out += labels[a]
	}
	return out
}
