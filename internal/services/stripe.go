package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SessionMetadata is the bag attached to every checkout session. It carries
// everything the settlement reconciler needs so webhook processing never has
// to look anything up from the redirect side.
type SessionMetadata struct {
	BookingID  string `json:"booking_id"`
	OwnerID    string `json:"owner_id"`
	ProviderID string `json:"provider_id"`
	Type       string `json:"type"`
}

const MetadataTypeBookingPayment = "booking_payment"

type CheckoutParams struct {
	BookingID   string
	OwnerID     string
	ProviderID  string
	Amount      float64
	Currency    string
	Description string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	Paid            bool
	Metadata        SessionMetadata
}

// PaymentGateway is the slice of the processor's API the booking core uses:
// hosted checkout in, reversing refunds out.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string, reverseTransfer bool) (string, error)
}

type StripeService struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	successURL    string
	cancelURL     string
	client        *http.Client
}

func NewStripeService(secretKey, webhookSecret, baseURL, successURL, cancelURL string) *StripeService {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeService{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		successURL:    successURL,
		cancelURL:     cancelURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

type stripeSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.successURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", s.cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	// Round, don't truncate: 19.99*100 floats to 1998.999..., and the charge
	// must match the net_amount recorded on the hold and in the ledger.
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(math.Round(params.Amount*100)), 10))
	form.Set("line_items[0][price_data][product_data][name]", params.Description)
	form.Set("metadata[booking_id]", params.BookingID)
	form.Set("metadata[owner_id]", params.OwnerID)
	form.Set("metadata[provider_id]", params.ProviderID)
	form.Set("metadata[type]", MetadataTypeBookingPayment)

	var out stripeSession
	if err := s.do(ctx, "POST", "/v1/checkout/sessions", form, &out); err != nil {
		return nil, err
	}
	return sessionFromStripe(&out), nil
}

func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var out stripeSession
	if err := s.do(ctx, "GET", "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return sessionFromStripe(&out), nil
}

func (s *StripeService) CreateRefund(ctx context.Context, paymentIntentID string, reverseTransfer bool) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	if reverseTransfer {
		// Claw the funds back from the provider's connected account, not just
		// the platform balance.
		form.Set("reverse_transfer", "true")
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, "POST", "/v1/refunds", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (s *StripeService) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return errors.New("stripe error: " + string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sessionFromStripe(raw *stripeSession) *CheckoutSession {
	return &CheckoutSession{
		ID:              raw.ID,
		URL:             raw.URL,
		PaymentIntentID: raw.PaymentIntent,
		Paid:            raw.PaymentStatus == "paid",
		Metadata: SessionMetadata{
			BookingID:  raw.Metadata["booking_id"],
			OwnerID:    raw.Metadata["owner_id"],
			ProviderID: raw.Metadata["provider_id"],
			Type:       raw.Metadata["type"],
		},
	}
}

// WebhookEvent is the typed envelope delivered to the webhook endpoint.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object stripeSession `json:"object"`
	} `json:"data"`
}

// Session exposes the event's checkout session in the gateway-neutral shape.
func (e *WebhookEvent) Session() *CheckoutSession {
	return sessionFromStripe(&e.Data.Object)
}

const webhookTolerance = 5 * time.Minute

var (
	ErrWebhookSignature = errors.New("webhook signature verification failed")
	ErrWebhookStale     = errors.New("webhook timestamp outside tolerance")
)

// VerifyWebhook checks the signature header ("t=<unix>,v1=<hex hmac>") over
// "<t>.<payload>" and rejects stale deliveries, then decodes the event.
func (s *StripeService) VerifyWebhook(payload []byte, sigHeader string, now time.Time) (*WebhookEvent, error) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return nil, ErrWebhookSignature
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrWebhookSignature
	}
	sent := time.Unix(tsInt, 0)
	if now.Sub(sent) > webhookTolerance || sent.Sub(now) > webhookTolerance {
		return nil, ErrWebhookStale
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrWebhookSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook event: %w", err)
	}
	return &event, nil
}
