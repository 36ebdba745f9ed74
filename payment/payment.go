// Package payment abstracts the processors rides are charged through.
package payment

import (
	"context"
	"errors"
	"math"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// OrderRef identifies an order at the provider.
type OrderRef string

var ErrInvalidAmount = errors.New("payment amount must be positive")

// Provider is the contract every processor (card network, regional wallet)
// is driven through.
type Provider interface {
	CreateOrder(ctx context.Context, amount float64) (OrderRef, error)
	Capture(ctx context.Context, ref OrderRef) (Status, error)
}

// minorUnits converts an amount in major currency units to the smallest
// unit (paisa, cents), rounding half away from zero.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}
