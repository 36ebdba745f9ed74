package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Simulated stands in for a wallet (eSewa-style) that confirms every order
// after a short delay. It is the default provider outside production.
type Simulated struct {
	Delay time.Duration
}

func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay}
}

func (s *Simulated) CreateOrder(ctx context.Context, amount float64) (OrderRef, error) {
	if !validAmount(amount) {
		return "", ErrInvalidAmount
	}
	return OrderRef("esewa-sim-" + uuid.NewString()), nil
}

func (s *Simulated) Capture(ctx context.Context, ref OrderRef) (Status, error) {
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return StatusPending, ctx.Err()
	case <-t.C:
		return StatusPaid, nil
	}
}
