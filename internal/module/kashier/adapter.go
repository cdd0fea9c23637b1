package kashier

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukkan/server/internal/module/crypto"
	"github.com/dukkan/server/internal/shared/config"
)

// DefaultTolerance is the webhook timestamp freshness window.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidConfig is returned when merchant credentials are missing.
var ErrInvalidConfig = errors.New("kashier merchant configuration incomplete")

// Config holds the merchant credentials and endpoints for one tenant, or
// the process-wide fallback.
type Config struct {
	MerchantID     string
	APIKey         string
	APISecret      string // webhook signing key; falls back to APIKey
	BaseURL        string
	AppBaseURL     string
	Mode           string // test, live
	AllowedMethods string
	Display        string
}

// SigningSecret returns the key used to verify webhook signatures.
func (c Config) SigningSecret() []byte {
	if c.APISecret != "" {
		return []byte(c.APISecret)
	}
	return []byte(c.APIKey)
}

// FromAppConfig builds the fallback adapter Config from app configuration.
func FromAppConfig(cfg *config.KashierConfig) Config {
	return Config{
		MerchantID:     cfg.MerchantID,
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		BaseURL:        cfg.BaseURL,
		AppBaseURL:     cfg.AppBaseURL,
		Mode:           cfg.Mode,
		AllowedMethods: "card",
		Display:        "en",
	}
}

// RedirectResult is the outcome of building a hosted-checkout redirect.
type RedirectResult struct {
	RedirectURL   string
	TransactionID string
}

// Adapter translates between the platform's payment intent and the Kashier
// wire protocol. It holds no persistent state; both operations are
// side-effect free.
type Adapter struct {
	cfg Config
	now func() time.Time
}

// NewAdapter creates an adapter for one merchant configuration.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, now: time.Now}
}

// Config returns the adapter's merchant configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// BuildPaymentRedirect constructs the signed hosted-checkout URL for an
// order. Deterministic: the gateway independently recomputes the hash from
// the same canonical string, so no nonce is involved.
//
// Hash input: "/?payment={merchantId}.{orderId}.{amount}.{currency}" with
// the amount formatted to exactly two decimals and the currency upper-cased,
// signed with HMAC-SHA256 under the merchant API key.
func (a *Adapter) BuildPaymentRedirect(orderID string, amount float64, currency, customerEmail, customerName string) (*RedirectResult, error) {
	if a.cfg.MerchantID == "" || a.cfg.APIKey == "" {
		return nil, ErrInvalidConfig
	}
	if orderID == "" {
		return nil, errors.New("order id required")
	}
	if amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	amountStr := fmt.Sprintf("%.2f", amount)
	currency = strings.ToUpper(currency)

	hashInput := fmt.Sprintf("/?payment=%s.%s.%s.%s", a.cfg.MerchantID, orderID, amountStr, currency)
	hash := crypto.SignWithKey(hashInput, []byte(a.cfg.APIKey))

	q := url.Values{}
	q.Set("merchantId", a.cfg.MerchantID)
	q.Set("orderId", orderID)
	q.Set("mode", a.cfg.Mode)
	q.Set("amount", amountStr)
	q.Set("currency", currency)
	q.Set("hash", hash)
	q.Set("merchantRedirect", fmt.Sprintf("%s/payment/success?order_id=%s", a.cfg.AppBaseURL, orderID))
	q.Set("failureRedirect", fmt.Sprintf("%s/payment/failure?order_id=%s", a.cfg.AppBaseURL, orderID))
	q.Set("serverWebhook", fmt.Sprintf("%s/api/webhooks/kashier", a.cfg.AppBaseURL))
	q.Set("allowedMethods", a.cfg.AllowedMethods)
	q.Set("display", a.cfg.Display)
	if customerEmail != "" {
		q.Set("customerEmail", customerEmail)
	}
	if customerName != "" {
		q.Set("customerName", customerName)
	}

	return &RedirectResult{
		RedirectURL:   fmt.Sprintf("%s/?%s", strings.TrimRight(a.cfg.BaseURL, "/"), q.Encode()),
		TransactionID: "gateway_" + orderID,
	}, nil
}

// VerifyWebhookSignature checks an inbound webhook's HMAC signature and
// timestamp freshness. Every failure mode degrades to "not verified";
// the function never returns an error.
//
// The signature covers "{timestamp}.{rawBody}" under the merchant signing
// secret. Timestamps outside the tolerance window are rejected to defend
// against replay of captured requests.
func (a *Adapter) VerifyWebhookSignature(rawBody []byte, signature, timestamp string, tolerance time.Duration) bool {
	if signature == "" || timestamp == "" {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ts, ok := parseTimestamp(timestamp)
	if !ok {
		return false
	}

	now := a.now()
	if ts.Before(now.Add(-tolerance)) || ts.After(now.Add(tolerance)) {
		return false
	}

	signed := timestamp + "." + string(rawBody)
	return crypto.VerifyWithKey(signed, signature, a.cfg.SigningSecret())
}

// parseTimestamp accepts unix seconds, unix milliseconds, or RFC 3339.
func parseTimestamp(raw string) (time.Time, bool) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Millisecond timestamps are 13 digits for any recent date.
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
