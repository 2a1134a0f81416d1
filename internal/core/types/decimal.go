// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}

// Quantity is a stock quantity in whole sellable units.
//
// Retail stock here is counted in units (bottles, packs, covers), never
// fractions, so a plain integer is both exact and comparable. Anything that
// needs fractional amounts (prices, line totals) uses Money instead.
type Quantity = int64

// MulMoney returns qty * price as Money.
func MulMoney(qty Quantity, price Money) Money {
	return price.Mul(decimal.NewFromInt(qty))
}
