package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
)

const apiBaseURL = "https://api.stripe.com"

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
}

type subscriptionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client speaks the gateway's form-encoded HTTP API directly.
type Client struct {
	apiKey     string
	successURL string
	cancelURL  string
	client     *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(cfg.StripeSecretKey),
		successURL: strings.TrimSpace(cfg.StripeSuccessURL),
		cancelURL:  strings.TrimSpace(cfg.StripeCancelURL),
		client:     &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *Client) Provider() string { return "stripe" }

func (c *Client) CreateCheckoutSession(ctx context.Context, params paymentdomain.CheckoutParams) (paymentdomain.CheckoutSession, error) {
	if params.Amount <= 0 {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidAmount
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", c.successURL)
	values.Set("cancel_url", c.cancelURL)
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", params.Description)
	values.Set("metadata[booking_id]", params.BookingID.String())
	values.Set("metadata[phase]", string(params.Phase))
	values.Set("payment_intent_data[metadata][booking_id]", params.BookingID.String())
	values.Set("payment_intent_data[metadata][phase]", string(params.Phase))

	var session checkoutSessionResponse
	err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, params.IdempotencyKey, &session)
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if session.ID == "" || session.URL == "" {
		return paymentdomain.CheckoutSession{}, errors.New("stripe_response_invalid")
	}

	return paymentdomain.CheckoutSession{
		SessionReference: session.ID,
		CheckoutURL:      session.URL,
		Amount:           params.Amount,
		Currency:         strings.ToLower(params.Currency),
	}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, params paymentdomain.SubscriptionParams) (string, error) {
	if params.Amount <= 0 {
		return "", paymentdomain.ErrInvalidAmount
	}
	interval, intervalCount, err := billingInterval(params.Interval)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("customer", params.CustomerID.String())
	values.Set("items[0][price_data][currency]", strings.ToLower(params.Currency))
	values.Set("items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	values.Set("items[0][price_data][recurring][interval]", interval)
	values.Set("items[0][price_data][recurring][interval_count]", strconv.Itoa(intervalCount))
	values.Set("items[0][price_data][product_data][name]", "recurring booking")
	values.Set("metadata[booking_id]", params.BookingID.String())

	var sub subscriptionResponse
	err = c.doRequest(ctx, http.MethodPost, "/v1/subscriptions", values, "booking-sub:"+params.BookingID.String(), &sub)
	if err != nil {
		return "", err
	}
	if sub.ID == "" {
		return "", errors.New("stripe_response_invalid")
	}
	return sub.ID, nil
}

// Refund reverses a settled checkout session. The session is retrieved
// first because refunds key off the underlying payment intent.
func (c *Client) Refund(ctx context.Context, sessionReference string, amount int64) error {
	sessionReference = strings.TrimSpace(sessionReference)
	if sessionReference == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if amount <= 0 {
		return paymentdomain.ErrInvalidAmount
	}

	var session checkoutSessionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionReference, nil, "", &session); err != nil {
		return err
	}
	if session.PaymentIntent == "" {
		return errors.New("stripe_payment_intent_missing")
	}

	values := url.Values{}
	values.Set("payment_intent", session.PaymentIntent)
	values.Set("amount", strconv.FormatInt(amount, 10))

	var refund refundResponse
	return c.doRequest(ctx, http.MethodPost, "/v1/refunds", values, "refund:"+sessionReference, &refund)
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return paymentdomain.ErrInvalidConfig
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return paymentdomain.ErrGatewayUnavailable
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return errors.New("stripe_request_failed")
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return errors.New(message)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func billingInterval(frequency string) (string, int, error) {
	switch strings.ToLower(strings.TrimSpace(frequency)) {
	case "weekly":
		return "week", 1, nil
	case "monthly":
		return "month", 1, nil
	case "quarterly":
		return "month", 3, nil
	default:
		return "", 0, paymentdomain.ErrInvalidEvent
	}
}
