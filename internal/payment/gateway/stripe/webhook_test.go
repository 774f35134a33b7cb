package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/gateway/stripe"
)

const webhookSecret = "whsec_test"

func newAdapter() *stripe.Adapter {
	return stripe.NewAdapter(config.Config{StripeWebhookSecret: webhookSecret})
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter()
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now().UTC().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(webhookSecret, payload, now))

	if err := adapter.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	adapter := newAdapter()
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now().UTC().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader("whsec_other", payload, now))

	err := adapter.Verify(context.Background(), payload, header)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	adapter := newAdapter()
	payload := []byte(`{"id":"evt_1","amount":5000}`)
	now := time.Now().UTC().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(webhookSecret, payload, now))

	tampered := []byte(`{"id":"evt_1","amount":9999}`)
	err := adapter.Verify(context.Background(), tampered, header)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	adapter := newAdapter()

	err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	adapter := newAdapter()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"checkout.session.completed","created":%d,"data":{"object":{"id":"cs_1","amount_total":5000,"currency":"USD","created":%d,"metadata":{"booking_id":"1234567890123456789","phase":"upfront"}}}}`,
		now.Unix(), now.Unix(),
	))

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentSucceeded {
		t.Fatalf("expected payment_succeeded, got %s", event.Type)
	}
	if event.SessionReference != "cs_1" || event.ProviderEventID != "evt_1" {
		t.Fatalf("unexpected references: session=%s event=%s", event.SessionReference, event.ProviderEventID)
	}
	if event.Phase != ledgerdomain.PhaseUpfront || event.Amount != 5000 {
		t.Fatalf("unexpected phase/amount: %s %d", event.Phase, event.Amount)
	}
	if event.Currency != "usd" {
		t.Fatalf("currency must be lowercased, got %s", event.Currency)
	}
	if event.BookingID.String() != "1234567890123456789" {
		t.Fatalf("unexpected booking id %s", event.BookingID.String())
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("unexpected occurred_at %v", event.OccurredAt)
	}
}

func TestParseCheckoutSessionExpired(t *testing.T) {
	adapter := newAdapter()
	now := time.Now().UTC()

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_2","type":"checkout.session.expired","created":%d,"data":{"object":{"id":"cs_2","amount_total":5000,"currency":"usd","created":%d,"metadata":{"booking_id":"1234567890123456789","phase":"completion"}}}}`,
		now.Unix(), now.Unix(),
	))

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypePaymentFailed {
		t.Fatalf("expected payment_failed, got %s", event.Type)
	}
}

func TestParseInvoicePaid(t *testing.T) {
	adapter := newAdapter()
	now := time.Now().UTC()

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_3","type":"invoice.paid","created":%d,"data":{"object":{"id":"in_1","amount_paid":10000,"currency":"usd","created":%d,"subscription":"sub_1","subscription_details":{"metadata":{"booking_id":"1234567890123456789"}}}}}`,
		now.Unix(), now.Unix(),
	))

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypeInvoicePaid {
		t.Fatalf("expected invoice_paid, got %s", event.Type)
	}
	if event.Phase != ledgerdomain.PhaseCompletion {
		t.Fatalf("invoice settlements land on the completion phase, got %s", event.Phase)
	}
	if event.SubscriptionRef != "sub_1" || event.Amount != 10000 {
		t.Fatalf("unexpected subscription/amount: %s %d", event.SubscriptionRef, event.Amount)
	}
}

func TestParseInvoiceWithoutBookingIsIgnored(t *testing.T) {
	adapter := newAdapter()
	now := time.Now().UTC()

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_4","type":"invoice.paid","created":%d,"data":{"object":{"id":"in_2","amount_paid":10000,"currency":"usd","created":%d,"subscription":"sub_2","subscription_details":{"metadata":{}}}}}`,
		now.Unix(), now.Unix(),
	))

	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestParseIgnoresUnhandledEventTypes(t *testing.T) {
	adapter := newAdapter()

	payload := []byte(`{"id":"evt_5","type":"customer.updated","created":1,"data":{"object":{}}}`)
	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestParseRejectsSessionWithoutMetadata(t *testing.T) {
	adapter := newAdapter()

	payload := []byte(`{"id":"evt_6","type":"checkout.session.completed","created":1,"data":{"object":{"id":"cs_3","amount_total":5000,"currency":"usd","metadata":{}}}}`)
	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
