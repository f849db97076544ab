package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// WalletClient is a thin wrapper around stripe-go for the WALLET
// payment flow: hold funds when the ride is confirmed, capture when it
// ends, release when it is cancelled.
type WalletClient struct{}

// NewWalletClient initializes the stripe client with the given API key.
func NewWalletClient(key string) *WalletClient {
	stripe.Key = key
	return &WalletClient{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold
// funds. It returns the PaymentIntent ID on success.
func (w *WalletClient) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (w *WalletClient) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Release cancels the hold on a PaymentIntent.
func (w *WalletClient) Release(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
