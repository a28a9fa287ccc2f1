package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type mockSessionCreator struct {
	newFn func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (m *mockSessionCreator) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return m.newFn(params)
}

func newTestClient() *StripeClient {
	return NewStripeClient(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Tolerance:     5 * time.Minute,
	})
}

func sign(payload string, secret string, ts time.Time) *stripewebhook.SignedPayload {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: ts,
		Scheme:    "v1",
	})
}

const checkoutCompletedJSON = `{
  "id": "evt_checkout_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "mode": "subscription",
      "customer": "cus_123",
      "subscription": "sub_456",
      "amount_total": 999,
      "metadata": {"userId": "user-1", "priceId": "price_basic"}
    }
  }
}`

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	c := newTestClient()
	signed := sign(checkoutCompletedJSON, testWebhookSecret, time.Now())

	ev, err := c.ParseWebhook(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}

	if ev.ID != "evt_checkout_1" || ev.Type != EventCheckoutSessionCompleted {
		t.Errorf("event = %s/%s", ev.ID, ev.Type)
	}
	if ev.Mode != "subscription" {
		t.Errorf("Mode = %q", ev.Mode)
	}
	if ev.AmountTotal != 999 {
		t.Errorf("AmountTotal = %d, want 999", ev.AmountTotal)
	}
	if ev.BillingCustomerRef != "cus_123" || ev.BillingSubscriptionRef != "sub_456" {
		t.Errorf("refs = %q/%q", ev.BillingCustomerRef, ev.BillingSubscriptionRef)
	}
	if ev.MetadataValue(MetadataUserID) != "user-1" || ev.MetadataValue(MetadataPriceID) != "price_basic" {
		t.Errorf("metadata = %v", ev.Metadata)
	}
}

func TestParseWebhook_SubscriptionDeleted(t *testing.T) {
	c := newTestClient()
	payload := `{"id":"evt_del_1","object":"event","type":"customer.subscription.deleted",
	  "data":{"object":{"id":"sub_456","object":"subscription","customer":"cus_123","status":"canceled"}}}`
	signed := sign(payload, testWebhookSecret, time.Now())

	ev, err := c.ParseWebhook(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}
	if ev.BillingSubscriptionRef != "sub_456" || ev.SubscriptionStatus != "canceled" {
		t.Errorf("event = %+v", ev)
	}
}

func TestParseWebhook_SignatureFailures(t *testing.T) {
	c := newTestClient()
	valid := sign(checkoutCompletedJSON, testWebhookSecret, time.Now())

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"missing_header", valid.Payload, ""},
		{"wrong_secret", sign(checkoutCompletedJSON, "whsec_other", time.Now()).Payload, sign(checkoutCompletedJSON, "whsec_other", time.Now()).Header},
		{"tampered_payload", []byte(`{"id":"evt_forged"}`), valid.Header},
		{"expired_timestamp", sign(checkoutCompletedJSON, testWebhookSecret, time.Now().Add(-time.Hour)).Payload, sign(checkoutCompletedJSON, testWebhookSecret, time.Now().Add(-time.Hour)).Header},
		{"garbage_header", valid.Payload, "not-a-signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ParseWebhook(tt.payload, tt.header)
			if !errors.Is(err, ErrSignatureInvalid) {
				t.Errorf("expected ErrSignatureInvalid, got %v", err)
			}
		})
	}
}

func TestParseWebhook_UnknownType_DecodesEnvelopeOnly(t *testing.T) {
	c := newTestClient()
	payload := `{"id":"evt_x","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`
	signed := sign(payload, testWebhookSecret, time.Now())

	ev, err := c.ParseWebhook(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}
	if ev.Type != "invoice.paid" || ev.Mode != "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestParseWebhook_MalformedObject_ReturnsEnvelope(t *testing.T) {
	c := newTestClient()
	payload := `{"id":"evt_bad","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":"oops"}}}`
	signed := sign(payload, testWebhookSecret, time.Now())

	ev, err := c.ParseWebhook(signed.Payload, signed.Header)
	if !errors.Is(err, ErrEventMalformed) {
		t.Fatalf("expected ErrEventMalformed, got %v", err)
	}
	if errors.Is(err, ErrSignatureInvalid) {
		t.Error("malformed object must not be reported as a signature failure")
	}
	if ev == nil || ev.ID != "evt_bad" || ev.Type != EventCheckoutSessionCompleted {
		t.Errorf("event = %+v", ev)
	}
}

func TestCreateCheckoutSession_BuildsSubscriptionParams(t *testing.T) {
	c := newTestClient()
	var got *stripe.CheckoutSessionParams
	c.sessions = &mockSessionCreator{newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
	}}

	url, err := c.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID:     "user-1",
		Email:      "a@example.com",
		PriceID:    "price_basic",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession returned error: %v", err)
	}
	if url != "https://checkout.stripe.test/cs_1" {
		t.Errorf("url = %q", url)
	}

	if stripe.StringValue(got.Mode) != "subscription" {
		t.Errorf("Mode = %q", stripe.StringValue(got.Mode))
	}
	if len(got.LineItems) != 1 || stripe.StringValue(got.LineItems[0].Price) != "price_basic" {
		t.Errorf("LineItems = %+v", got.LineItems)
	}
	if got.Metadata[MetadataUserID] != "user-1" || got.Metadata[MetadataPriceID] != "price_basic" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if stripe.StringValue(got.CustomerEmail) != "a@example.com" {
		t.Errorf("CustomerEmail = %q", stripe.StringValue(got.CustomerEmail))
	}
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	c := newTestClient()
	providerErr := errors.New("stripe down")
	c.sessions = &mockSessionCreator{newFn: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, providerErr
	}}

	_, err := c.CreateCheckoutSession(context.Background(), CheckoutRequest{PriceID: "price_basic"})
	if !errors.Is(err, providerErr) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}
