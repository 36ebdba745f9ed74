// Package otp issues and verifies the short-lived codes that unlock a bike.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/internal/lock"
	"github.com/semanticallynull/bikeshare-backend/internal/o11y"
)

var (
	ErrBikeUnavailable   = errors.New("bike not available")
	ErrNoActiveChallenge = errors.New("no OTP generated for this bike")
	ErrExpired           = errors.New("OTP expired")
	ErrMismatch          = errors.New("invalid OTP")
)

const (
	DefaultDigits  = 4
	DefaultTTL     = 90 * time.Second
	DefaultHoldFor = 2 * time.Minute
)

type Config struct {
	// Digits is the code length, between 4 and 6.
	Digits int
	// TTL is how long an issued code stays valid.
	TTL time.Duration
	// HoldFor is how long an unlocked bike waits for a ride before it frees
	// itself.
	HoldFor time.Duration
}

func (c Config) withDefaults() Config {
	if c.Digits < 4 || c.Digits > 6 {
		c.Digits = DefaultDigits
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.HoldFor <= 0 {
		c.HoldFor = DefaultHoldFor
	}
	return c
}

// Bikes is the bike persistence the issuer needs. *bike.Repository
// implements it.
type Bikes interface {
	GetBikeByCode(ctx context.Context, code string) (bike.Bike, error)
	SetOTP(ctx context.Context, id uuid.UUID, code string, at time.Time) error
	Unlock(ctx context.Context, id uuid.UUID, code string, holder *uuid.UUID, releaseAt time.Time) (bike.Bike, error)
}

var _ Bikes = (*bike.Repository)(nil)

// Notifier delivers an event to a rider's live channel.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload any) error
}

var tracer = otel.Tracer("github.com/semanticallynull/bikeshare-backend/otp")

// Issuer runs the unlock protocol. Issue and Verify on the same bike are
// serialized by the locker.
type Issuer struct {
	cfg      Config
	bikes    Bikes
	locker   lock.Locker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewIssuer(cfg Config, bikes Bikes, locker lock.Locker, notifier Notifier, logger *slog.Logger) *Issuer {
	return &Issuer{
		cfg:      cfg.withDefaults(),
		bikes:    bikes,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Challenge is an outstanding unlock code.
type Challenge struct {
	BikeID    uuid.UUID
	BikeCode  string
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Reused is set when the still-valid code from an earlier request was
	// handed out again.
	Reused bool
}

// Issue returns the unlock code for the bike. While a code is valid it is
// returned unchanged; otherwise a fresh one replaces it. The code is pushed to
// userID's live channel when one is given.
func (i *Issuer) Issue(ctx context.Context, bikeCode string, userID uuid.UUID) (Challenge, error) {
	ctx, span := tracer.Start(ctx, "otp.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("bike.code", bikeCode))

	unlock, err := i.locker.Lock(ctx, "bike:"+bikeCode)
	if err != nil {
		return Challenge{}, fmt.Errorf("lock bike %s: %w", bikeCode, err)
	}
	defer unlock()

	b, err := i.bikes.GetBikeByCode(ctx, bikeCode)
	if err != nil {
		return Challenge{}, err
	}

	now := i.now()
	if !b.Reservable(now) {
		return Challenge{}, ErrBikeUnavailable
	}

	c := Challenge{BikeID: b.ID, BikeCode: b.Code}
	if b.Available && b.UnlockOTP.Valid && now.Sub(b.OTPGeneratedAt.Time) <= i.cfg.TTL {
		c.Code, c.IssuedAt, c.Reused = b.UnlockOTP.String, b.OTPGeneratedAt.Time, true
	} else {
		code, err := i.generate(b.UnlockOTP.String)
		if err != nil {
			return Challenge{}, err
		}
		if err := i.bikes.SetOTP(ctx, b.ID, code, now); err != nil {
			if errors.Is(err, bike.ErrNotAvailable) {
				return Challenge{}, ErrBikeUnavailable
			}
			return Challenge{}, err
		}
		c.Code, c.IssuedAt = code, now
	}
	c.ExpiresAt = c.IssuedAt.Add(i.cfg.TTL)

	kind := "new"
	if c.Reused {
		kind = "reused"
	}
	o11y.OTPIssued.WithLabelValues(kind).Inc()

	if userID != uuid.Nil && i.notifier != nil {
		payload := map[string]string{"otp": c.Code, "bikeCode": c.BikeCode}
		if err := i.notifier.Notify(ctx, userID.String(), "otp", payload); err != nil {
			i.logger.WarnContext(ctx, "failed to deliver OTP", "user_id", userID, "bike_code", bikeCode, "error", err)
		}
	}
	return c, nil
}

// Verify checks code against the bike's outstanding challenge. On success the
// challenge is consumed and the bike is held for userID until the hold
// lapses. A failed verification leaves the bike as it was.
func (i *Issuer) Verify(ctx context.Context, bikeCode, code string, userID uuid.UUID) (bike.Bike, error) {
	ctx, span := tracer.Start(ctx, "otp.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("bike.code", bikeCode))

	unlock, err := i.locker.Lock(ctx, "bike:"+bikeCode)
	if err != nil {
		return bike.Bike{}, fmt.Errorf("lock bike %s: %w", bikeCode, err)
	}
	defer unlock()

	b, err := i.verify(ctx, bikeCode, code, userID)
	result := "ok"
	switch {
	case errors.Is(err, ErrNoActiveChallenge):
		result = "no_challenge"
	case errors.Is(err, ErrExpired):
		result = "expired"
	case errors.Is(err, ErrMismatch):
		result = "mismatch"
	case err != nil:
		result = "error"
	}
	o11y.OTPVerifications.WithLabelValues(result).Inc()
	return b, err
}

func (i *Issuer) verify(ctx context.Context, bikeCode, code string, userID uuid.UUID) (bike.Bike, error) {
	b, err := i.bikes.GetBikeByCode(ctx, bikeCode)
	if err != nil {
		return bike.Bike{}, err
	}
	if !b.UnlockOTP.Valid {
		return bike.Bike{}, ErrNoActiveChallenge
	}

	now := i.now()
	if now.Sub(b.OTPGeneratedAt.Time) > i.cfg.TTL {
		return bike.Bike{}, ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(b.UnlockOTP.String)) != 1 {
		return bike.Bike{}, ErrMismatch
	}

	var holder *uuid.UUID
	if userID != uuid.Nil {
		holder = &userID
	}
	unlocked, err := i.bikes.Unlock(ctx, b.ID, code, holder, now.Add(i.cfg.HoldFor))
	if errors.Is(err, bike.ErrNotAvailable) {
		return bike.Bike{}, ErrBikeUnavailable
	}
	return unlocked, err
}

// generate draws a uniformly random code of the configured length that
// differs from prev.
func (i *Issuer) generate(prev string) (string, error) {
	lo := pow10(i.cfg.Digits - 1)
	span := big.NewInt(9 * lo)
	for {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", fmt.Errorf("generate OTP: %w", err)
		}
		code := fmt.Sprintf("%d", n.Int64()+lo)
		if code != prev {
			return code, nil
		}
	}
}

func pow10(n int) int64 {
	v := int64(1)
	for range n {
		v *= 10
	}
	return v
}
