package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// Stripe places a manual-capture PaymentIntent per order and captures it on
// Capture.
type Stripe struct {
	currency      string
	paymentMethod string
}

// NewStripe configures the Stripe API key. paymentMethod is the method the
// intent is confirmed with (e.g. a saved card or "pm_card_visa" in test mode).
func NewStripe(key, currency, paymentMethod string) *Stripe {
	stripe.Key = key
	return &Stripe{currency: currency, paymentMethod: paymentMethod}
}

func (s *Stripe) CreateOrder(ctx context.Context, amount float64) (OrderRef, error) {
	if !validAmount(amount) {
		return "", ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(amount)),
		Currency:      stripe.String(s.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethod: stripe.String(s.paymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return OrderRef(pi.ID), nil
}

func (s *Stripe) Capture(ctx context.Context, ref OrderRef) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusPending, err
	}

	pi, err := paymentintent.Capture(string(ref), &stripe.PaymentIntentCaptureParams{})
	if err != nil {
		return StatusFailed, fmt.Errorf("capture payment intent %s: %w", ref, err)
	}
	return intentStatus(pi.Status), nil
}

func intentStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
