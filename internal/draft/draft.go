// Package draft реализует черновик заказа, собираемый на клиенте до отправки.
package draft

import (
	"errors"
	"math"
	"strings"

	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/validation"
)

// ErrIndexOutOfRange возвращается при удалении позиции по несуществующему индексу.
var ErrIndexOutOfRange = errors.New("item index out of range")

// baseDeliveryPoints и subtotalShareDivisor задают стоимость доставки:
// 10 баллов плюс 5% от суммы заказа, с округлением вверх.
const (
	baseDeliveryPoints   = 10
	subtotalShareDivisor = 2000 // центов в одном балле при ставке 5%
)

// Draft представляет несохранённый заказ, привязанный к одному заведению.
// Существует только на клиенте и не переживает перезапуск.
type Draft struct {
	establishment *model.Establishment
	items         []model.OrderItem
}

// New создаёт пустой черновик для указанного заведения.
func New(est *model.Establishment) *Draft {
	return &Draft{establishment: est}
}

// Establishment возвращает заведение черновика или nil.
func (d *Draft) Establishment() *model.Establishment {
	return d.establishment
}

// Items возвращает копию списка позиций.
func (d *Draft) Items() []model.OrderItem {
	items := make([]model.OrderItem, len(d.items))
	copy(items, d.items)
	return items
}

// AddItem добавляет позицию в черновик. Позиция с пустым названием или
// неположительной ценой отклоняется без изменения списка. Количество меньше
// единицы нормализуется к единице.
func (d *Draft) AddItem(name string, quantity int, price float64, notes string) error {
	name = strings.TrimSpace(name)
	if err := validation.CheckOrderItem(name, price); err != nil {
		return err
	}

	if quantity < 1 {
		quantity = 1
	}

	d.items = append(d.items, model.OrderItem{
		Name:     name,
		Quantity: quantity,
		Price:    price,
		Notes:    strings.TrimSpace(notes),
	})
	return nil
}

// RemoveItem удаляет позицию по индексу.
func (d *Draft) RemoveItem(index int) error {
	if index < 0 || index >= len(d.items) {
		return ErrIndexOutOfRange
	}
	d.items = append(d.items[:index], d.items[index+1:]...)
	return nil
}

// Totals содержит производные суммы черновика.
type Totals struct {
	SubtotalCents  int64
	RequiredPoints int
}

// Subtotal возвращает сумму заказа в долларах.
func (t Totals) Subtotal() float64 {
	return float64(t.SubtotalCents) / 100
}

// Totals вычисляет сумму заказа и требуемые баллы доставки. Расчёт ведётся в
// целых центах, чтобы округление вверх было точным.
func (d *Draft) Totals() Totals {
	var cents int64
	for _, item := range d.items {
		cents += int64(math.Round(item.Price*100)) * int64(item.Quantity)
	}

	points := baseDeliveryPoints
	if cents > 0 {
		points += int((cents + subtotalShareDivisor - 1) / subtotalShareDivisor)
	}

	return Totals{
		SubtotalCents:  cents,
		RequiredPoints: points,
	}
}

// CanSubmit сообщает, готов ли черновик к отправке: есть хотя бы одна позиция
// и непустой адрес доставки.
func (d *Draft) CanSubmit(address string) bool {
	return len(d.items) > 0 && strings.TrimSpace(address) != ""
}
