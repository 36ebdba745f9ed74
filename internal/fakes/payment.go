package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/semanticallynull/bikeshare-backend/payment"
)

// Payments is a payment.Provider that records orders. Capture blocks until
// Release is closed when it is set.
type Payments struct {
	mu     sync.Mutex
	orders []float64

	CreateErr     error
	CaptureErr    error
	CaptureStatus payment.Status
	Release       chan struct{}
}

var _ payment.Provider = (*Payments)(nil)

func NewPayments() *Payments {
	return &Payments{CaptureStatus: payment.StatusPaid}
}

func (p *Payments) CreateOrder(ctx context.Context, amount float64) (payment.OrderRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return "", p.CreateErr
	}
	p.orders = append(p.orders, amount)
	return payment.OrderRef(fmt.Sprintf("order-%d", len(p.orders))), nil
}

func (p *Payments) Capture(ctx context.Context, ref payment.OrderRef) (payment.Status, error) {
	if p.Release != nil {
		select {
		case <-p.Release:
		case <-ctx.Done():
			return payment.StatusPending, ctx.Err()
		}
	}
	if p.CaptureErr != nil {
		return payment.StatusFailed, p.CaptureErr
	}
	return p.CaptureStatus, nil
}

func (p *Payments) Orders() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.orders...)
}

// Notification is one recorded Notify call.
type Notification struct {
	UserID  string
	Event   string
	Payload any
}

// Notifier records notifications and fails with Err when set.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (n *Notifier) Notify(ctx context.Context, userID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, Notification{UserID: userID, Event: event, Payload: payload})
	return nil
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
