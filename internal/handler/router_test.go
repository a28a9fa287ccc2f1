package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/hitoshi/devicehub/internal/auth"
	"github.com/hitoshi/devicehub/internal/billing"
	"github.com/hitoshi/devicehub/internal/device"
	"github.com/hitoshi/devicehub/internal/metrics"
	"github.com/hitoshi/devicehub/internal/middleware"
	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/repository/repotest"
	"github.com/hitoshi/devicehub/internal/subscription"
	"github.com/hitoshi/devicehub/internal/webhook"
)

const (
	routerTestJWTSecret     = "router-test-jwt-secret-0123456789"
	routerTestWebhookSecret = "whsec_router_test"
)

// offlineBilling はチェックアウト作成だけを差し替え、署名検証は本物のStripeClientを使う。
type offlineBilling struct {
	*billing.StripeClient
	lastRequest billing.CheckoutRequest
}

func (b *offlineBilling) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	b.lastRequest = req
	return "https://checkout.test/session/" + req.PriceID, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string) error { return nil }

type testServer struct {
	handler http.Handler
	store   *repotest.Store
	billing *offlineBilling
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repotest.NewStore()
	store.AddProduct(model.Product{ID: "p1", Name: "Smart Bulb Pro", PriceCents: 2999, Image: "bulb.jpg", Category: "Lighting"})

	bc := &offlineBilling{StripeClient: billing.NewStripeClient(billing.StripeConfig{
		SecretKey:     "sk_test_unused",
		WebhookSecret: routerTestWebhookSecret,
		Tolerance:     5 * time.Minute,
	})}

	issuer := auth.NewIssuer(routerTestJWTSecret, time.Hour)
	collector := metrics.NopCollector{}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	h := NewRouter(&RouterDeps{
		Verifier:          auth.NewVerifier(routerTestJWTSecret),
		CORSAllowedOrigin: "http://localhost:3000",
		RequestTimeout:    5 * time.Second,
		RateLimiter:       limiter,
		Collector:         collector,
		AccountService:    auth.NewAccountService(store.Users(), issuer),
		DeviceService:     device.NewService(store.Users(), store.Devices(), nopPublisher{}, collector),
		SubscriptionService: subscription.NewService(store.Users(), bc, subscription.CheckoutConfig{
			PriceIDs:   map[model.Plan]string{model.PlanBasic: "price_basic", model.PlanPremium: "price_premium"},
			SuccessURL: "http://localhost:3000/success",
			CancelURL:  "http://localhost:3000/cancel",
		}),
		WebhookReconciler: webhook.NewReconciler(bc, store.Users(), store.WebhookEvents(), webhook.PlanMapping{
			PriceIDs: map[string]string{"price_basic": "basic", "price_premium": "premium"},
		}, collector),
		Products: store.Products(),
	})
	return &testServer{handler: h, store: store, billing: bc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Router Test", "email": email, "password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body=%s", w.Code, w.Body.String())
	}
	var body tokenResponse
	decodeBody(t, w, &body)
	return body.Token, body.User.ID
}

func (s *testServer) deliverWebhook(t *testing.T, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   raw,
		Secret:    routerTestWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func checkoutCompleted(eventID, userID, priceID string) map[string]any {
	return map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "cs_" + eventID,
				"object":       "checkout.session",
				"mode":         "subscription",
				"customer":     "cus_router",
				"subscription": "sub_router",
				"metadata":     map[string]string{"userId": userID, "priceId": priceID},
			},
		},
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/products", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/api/products status = %d", w.Code)
	}
	var products []productResponse
	decodeBody(t, w, &products)
	if len(products) != 1 || products[0].Name != "Smart Bulb Pro" {
		t.Errorf("products = %+v", products)
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/iot/register"},
		{http.MethodGet, "/api/iot/my-devices"},
		{http.MethodPost, "/api/iot/control"},
		{http.MethodDelete, "/api/iot/devices/dev-1"},
		{http.MethodPost, "/api/subscription/create-checkout"},
		{http.MethodGet, "/api/subscription/status"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := s.do(t, rt.method, rt.path, "", nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeTokenMissing {
				t.Errorf("code = %q", body.Code)
			}

			w = s.do(t, rt.method, rt.path, "not-a-token", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status with bad token = %d, want 401", w.Code)
			}
		})
	}
}

func TestRouter_DeviceLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.signup(t, "lifecycle@example.com")

	w := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	var me userResponse
	decodeBody(t, w, &me)
	if me.ID != userID || me.Subscription.Plan != "none" {
		t.Fatalf("me = %+v", me)
	}

	w = s.do(t, http.MethodPost, "/api/iot/register", token, map[string]string{
		"name": "Lamp", "deviceId": "dev-lamp", "type": "bulb",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, body=%s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/iot/control", token, map[string]string{
		"deviceId": "dev-lamp", "command": "on",
	})
	var ctrl controlDeviceResponse
	decodeBody(t, w, &ctrl)
	if !ctrl.Success || ctrl.Status != "on" {
		t.Errorf("control = %+v", ctrl)
	}

	w = s.do(t, http.MethodGet, "/api/iot/my-devices", token, nil)
	var list []deviceResponse
	decodeBody(t, w, &list)
	if len(list) != 1 || list[0].Status != "on" {
		t.Fatalf("devices = %+v", list)
	}

	if w := s.do(t, http.MethodDelete, "/api/iot/devices/dev-lamp", token, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/iot/devices/dev-lamp", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestRouter_DevicesAreScopedToOwner(t *testing.T) {
	s := newTestServer(t)
	alice, _ := s.signup(t, "alice@example.com")
	bob, _ := s.signup(t, "bob@example.com")

	s.do(t, http.MethodPost, "/api/iot/register", alice, map[string]string{
		"name": "Lamp", "deviceId": "dev-alice", "type": "bulb",
	})

	w := s.do(t, http.MethodPost, "/api/iot/control", bob, map[string]string{
		"deviceId": "dev-alice", "command": "off",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("control by other user status = %d, want 404", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/iot/register", bob, map[string]string{
		"name": "Lamp", "deviceId": "dev-alice", "type": "bulb",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("register taken device id status = %d, want 409", w.Code)
	}
}

func TestRouter_QuotaUpgradeFlow(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.signup(t, "upgrade@example.com")

	register := func(deviceID string) int {
		return s.do(t, http.MethodPost, "/api/iot/register", token, map[string]string{
			"name": "Device", "deviceId": deviceID, "type": "sensor",
		}).Code
	}

	if code := register("dev-1"); code != http.StatusOK {
		t.Fatalf("first register = %d", code)
	}
	if code := register("dev-2"); code != http.StatusForbidden {
		t.Fatalf("second register = %d, want 403", code)
	}

	w := s.do(t, http.MethodPost, "/api/subscription/create-checkout", token, map[string]string{"plan": "basic"})
	var checkout checkoutResponse
	decodeBody(t, w, &checkout)
	if checkout.URL != "https://checkout.test/session/price_basic" {
		t.Fatalf("checkout url = %q", checkout.URL)
	}
	if s.billing.lastRequest.UserID != userID || s.billing.lastRequest.Email != "upgrade@example.com" {
		t.Errorf("checkout request = %+v", s.billing.lastRequest)
	}

	w = s.deliverWebhook(t, checkoutCompleted("evt_router_1", userID, "price_basic"))
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, body=%s", w.Code, w.Body.String())
	}
	var ack webhookResponse
	decodeBody(t, w, &ack)
	if ack.Outcome != "applied" {
		t.Errorf("outcome = %q", ack.Outcome)
	}

	w = s.do(t, http.MethodGet, "/api/subscription/status", token, nil)
	var status subscriptionStatusResponse
	decodeBody(t, w, &status)
	if status.Plan != "basic" || status.Status != "active" || status.DeviceLimit != 3 {
		t.Errorf("status = %+v", status)
	}

	if code := register("dev-2"); code != http.StatusOK {
		t.Errorf("register after upgrade = %d, want 200", code)
	}

	// 再送は重複として受理される
	w = s.deliverWebhook(t, checkoutCompleted("evt_router_1", userID, "price_basic"))
	decodeBody(t, w, &ack)
	if ack.Outcome != "duplicate" {
		t.Errorf("redelivery outcome = %q", ack.Outcome)
	}
}

func TestRouter_WebhookRejectsUnsignedPayload(t *testing.T) {
	s := newTestServer(t)
	_, userID := s.signup(t, "unsigned@example.com")

	raw, _ := json.Marshal(checkoutCompleted("evt_forged", userID, "price_premium"))
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(raw))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	u, _ := s.store.Users().FindByID(context.Background(), userID)
	if u.Subscription.Plan != model.PlanNone {
		t.Errorf("plan = %q, forged event must not change state", u.Subscription.Plan)
	}
	if s.store.ProcessedCount() != 0 {
		t.Errorf("forged event recorded in ledger")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/iot/register", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
