package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/httpx"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Signature-Timestamp"
	NonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute
	webhookScope     = "payments"
)

var verifications, _ = otel.Meter("printhub/auth").Int64Counter("webhook.verifications",
	metric.WithDescription("Signed callback verifications by outcome"))

// WebhookVerifier checks HMAC-SHA256 signatures on provider callbacks.
type WebhookVerifier struct {
	secret    []byte
	nonces    NonceStore
	responder *httpx.Responder
	logger    *slog.Logger
	now       func() time.Time
	clockSkew time.Duration
	nonceTTL  time.Duration
}

type WebhookOption func(*WebhookVerifier)

func WithClock(now func() time.Time) WebhookOption {
	return func(v *WebhookVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithClockSkew(d time.Duration) WebhookOption {
	return func(v *WebhookVerifier) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

func NewWebhookVerifier(secret string, nonces NonceStore, responder *httpx.Responder, logger *slog.Logger, opts ...WebhookOption) (*WebhookVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: webhook secret is required")
	}
	if nonces == nil {
		return nil, errors.New("auth: nonce store is required")
	}
	v := &WebhookVerifier{
		secret:    []byte(secret),
		nonces:    nonces,
		responder: responder,
		logger:    logger,
		now:       time.Now,
		clockSkew: defaultClockSkew,
		nonceTTL:  defaultNonceTTL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *WebhookVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason, err := v.verify(r)
		if verifications != nil {
			verifications.Add(r.Context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
		}
		if err != nil {
			v.logger.WarnContext(r.Context(), "webhook signature rejected", "reason", reason, "error", err)
			v.responder.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (v *WebhookVerifier) verify(r *http.Request) (string, error) {
	signatureValue := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if signatureValue == "" {
		return "signature_missing", apperror.Unauthenticated("signature header missing")
	}

	timestampValue := strings.TrimSpace(r.Header.Get(TimestampHeader))
	timestamp, err := parseTimestamp(timestampValue)
	if err != nil {
		return "timestamp_invalid", apperror.Wrap(apperror.KindAuthentication, "signature timestamp invalid", err)
	}
	if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
		return "timestamp_skew", apperror.Unauthenticated("signature timestamp outside allowed window")
	}

	nonce := strings.TrimSpace(r.Header.Get(NonceHeader))
	if nonce == "" {
		return "nonce_missing", apperror.Unauthenticated("signature nonce missing")
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return "body_unreadable", apperror.Validation("unable to read request body")
	}

	signature, err := decodeSignature(signatureValue)
	if err != nil {
		return "signature_invalid", apperror.Wrap(apperror.KindAuthentication, "signature encoding invalid", err)
	}
	expected := computeHMAC(v.secret, canonicalString(r.Method, r.URL.EscapedPath(), timestampValue, nonce, body))
	if !hmac.Equal(signature, expected) {
		return "signature_mismatch", apperror.Unauthenticated("signature verification failed")
	}

	expiry := timestamp.Add(v.nonceTTL)
	if expiry.Before(v.now()) {
		expiry = v.now().Add(v.nonceTTL)
	}
	stored, err := v.nonces.UseNonce(r.Context(), webhookScope, nonce, expiry)
	if err != nil {
		return "nonce_store_error", fmt.Errorf("record webhook nonce: %w", err)
	}
	if !stored {
		return "nonce_replay", apperror.Unauthenticated("duplicate signature nonce")
	}

	return "ok", nil
}

// Sign returns the hex signature a provider attaches to a callback.
func Sign(secret, method, path, timestamp, nonce string, body []byte) string {
	return hex.EncodeToString(computeHMAC([]byte(secret), canonicalString(method, path, timestamp, nonce, body)))
}

// SignRequest sets all three signature headers on req for the given body.
func SignRequest(req *http.Request, secret, nonce string, body []byte, now time.Time) {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set(TimestampHeader, timestamp)
	req.Header.Set(NonceHeader, nonce)
	req.Header.Set(SignatureHeader, Sign(secret, req.Method, req.URL.EscapedPath(), timestamp, nonce, body))
}

func canonicalString(method, path, timestamp, nonce string, body []byte) []byte {
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n"))
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("signature must be hex or base64 encoded")
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp empty")
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", value)
}
