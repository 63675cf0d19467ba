package stripegateway

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/transfer"
	"github.com/stripe/stripe-go/v84/webhook"
)

// TransferRequest carries the inputs for an owner payout transfer.
type TransferRequest struct {
	Destination string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// RefundRequest carries the inputs for a renter refund. A zero AmountCents
// refunds the full remaining charge.
type RefundRequest struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
}

// PaymentGateway is the payment-provider surface the booking core consumes.
// The concrete implementation talks to Stripe; tests substitute fakes.
type PaymentGateway interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*stripe.Transfer, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*stripe.Refund, error)
	RetrieveAccount(ctx context.Context, id string) (*stripe.Account, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

type gateway struct {
	client *Client
}

// NewGateway wraps the initialized Stripe client behind the PaymentGateway surface.
func NewGateway(client *Client) PaymentGateway {
	return &gateway{client: client}
}

func (g *gateway) CreateTransfer(ctx context.Context, req TransferRequest) (*stripe.Transfer, error) {
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return transfer.New(params)
}

func (g *gateway) RetrieveCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

func (g *gateway) CreateRefund(ctx context.Context, req RefundRequest) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
	}
	params.Context = ctx
	if req.AmountCents > 0 {
		params.Amount = stripe.Int64(req.AmountCents)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return refund.New(params)
}

func (g *gateway) RetrieveAccount(ctx context.Context, id string) (*stripe.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	return account.GetByID(id, params)
}

func (g *gateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, g.client.SigningSecret())
}
