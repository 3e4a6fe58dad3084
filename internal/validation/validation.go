// Package validation содержит локальные проверки, выполняемые до сетевых вызовов.
package validation

import (
	"errors"
	"strings"
)

// ErrInvalidEmailDomain возвращается, если email не принадлежит домену учебного заведения.
var (
	ErrInvalidEmailDomain = errors.New("email must belong to the institution domain")
	// ErrEmptyItemName возвращается при попытке добавить позицию без названия.
	ErrEmptyItemName = errors.New("item name must not be empty")
	// ErrInvalidItemPrice возвращается при попытке добавить позицию с нулевой или отрицательной ценой.
	ErrInvalidItemPrice = errors.New("item price must be positive")
)

// CheckEmailDomain проверяет, что email оканчивается требуемым суффиксом домена.
// Регистрация без такого email не должна приводить к сетевому вызову.
func CheckEmailDomain(email, domainSuffix string) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), strings.ToLower(domainSuffix)) {
		return ErrInvalidEmailDomain
	}
	return nil
}

// CheckOrderItem проверяет название и цену позиции заказа.
func CheckOrderItem(name string, price float64) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyItemName
	}
	if price <= 0 {
		return ErrInvalidItemPrice
	}
	return nil
}
