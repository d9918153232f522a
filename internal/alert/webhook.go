package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ejagojo/VibeScan/internal/scanner"
)

const (
	maxRetries = 3
	maxAge     = 10 * time.Minute
	nonceSize  = 32

	// SignatureHeader carries the payload signature for receivers that
	// verify before decoding.
	SignatureHeader = "X-VibeScan-Signature"
	algorithm       = "HMAC-SHA256"
)

// Overridden in tests.
var (
	baseDelay = 500 * time.Millisecond
	testNonce = ""
)

var (
	ErrExpired           = errors.New("payload timestamp expired")
	ErrReplay            = errors.New("replay attack detected")
	ErrSignatureMismatch = errors.New("signature verification failed")
)

// Webhook posts signed scan summaries to a URL
type Webhook struct {
	url      string
	secret   []byte
	client   *http.Client
	logger   *zap.Logger
	nonces   map[string]time.Time
	nonceMux sync.RWMutex
}

// NewWebhook creates a new webhook alert instance
func NewWebhook(url, secret string, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		nonces: make(map[string]time.Time),
	}
}

// Payload represents the webhook payload
type Payload struct {
	RunID       string            `json:"run_id"`
	Summary     string            `json:"summary"`
	Target      string            `json:"target"`
	Scores      scanner.Scores    `json:"scores"`
	Stats       scanner.Stats     `json:"stats"`
	Findings    []scanner.Finding `json:"findings"`
	GitRef      string            `json:"git_ref,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Nonce       string            `json:"nonce"`
	Sign        *Signature        `json:"signature,omitempty"`
}

// Signature represents the HMAC signature
type Signature struct {
	Algorithm string `json:"alg"`
	Value     string `json:"sig"`
}

// NewPayload builds an unsigned payload from a merged report.
func NewPayload(runID, summary string, report scanner.Report) *Payload {
	findings := report.Findings
	if findings == nil {
		findings = []scanner.Finding{}
	}
	return &Payload{
		RunID:       runID,
		Summary:     summary,
		Target:      report.Target,
		Scores:      report.Scores,
		Stats:       report.Stats,
		Findings:    findings,
		GeneratedAt: time.Now().UTC(),
	}
}

// NewRunID returns a random identifier for a scan run.
func NewRunID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// generateNonce creates a new random nonce
func (w *Webhook) generateNonce() (string, error) {
	if testNonce != "" {
		return testNonce, nil
	}
	nonceBytes := make([]byte, nonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonceBytes), nil
}

// claimNonce records nonce as used. It reports false if the nonce was
// already used and has not expired.
func (w *Webhook) claimNonce(nonce string, at time.Time) bool {
	w.nonceMux.Lock()
	defer w.nonceMux.Unlock()

	now := time.Now()
	for n, ts := range w.nonces {
		if now.Sub(ts) > maxAge {
			delete(w.nonces, n)
		}
	}
	if _, exists := w.nonces[nonce]; exists {
		return false
	}
	w.nonces[nonce] = at
	return true
}

// Send signs payload and posts it, retrying failed deliveries
func (w *Webhook) Send(ctx context.Context, payload *Payload) error {
	if time.Since(payload.GeneratedAt) > maxAge {
		return ErrExpired
	}

	nonce, err := w.generateNonce()
	if err != nil {
		return err
	}
	payload.Nonce = nonce

	signature, err := w.signPayload(payload)
	if err != nil {
		return fmt.Errorf("failed to sign payload: %w", err)
	}
	payload.Sign = signature

	if !w.claimNonce(nonce, payload.GeneratedAt) {
		return ErrReplay
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			w.logger.Warn("webhook delivery failed, retrying",
				zap.Int("attempt", i), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * baseDelay):
			}
		}

		lastErr = w.post(ctx, body, signature.Value)
		if lastErr == nil {
			w.logger.Debug("webhook delivered", zap.String("run_id", payload.RunID))
			return nil
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte, sig string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, algorithm+"="+sig)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// signPayload creates an HMAC-SHA256 signature over the payload with
// its signature field cleared
func (w *Webhook) signPayload(payload *Payload) (*Signature, error) {
	mac, err := w.mac(payload)
	if err != nil {
		return nil, err
	}
	return &Signature{
		Algorithm: algorithm,
		Value:     base64.StdEncoding.EncodeToString(mac),
	}, nil
}

func (w *Webhook) mac(payload *Payload) ([]byte, error) {
	unsigned := *payload
	unsigned.Sign = nil
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	h := hmac.New(sha256.New, w.secret)
	h.Write(data)
	return h.Sum(nil), nil
}

// Verify checks a received payload's age and signature with the shared
// secret.
func (w *Webhook) Verify(payload *Payload) error {
	if time.Since(payload.GeneratedAt) > maxAge {
		return ErrExpired
	}
	if payload.Sign == nil {
		return fmt.Errorf("no signature provided")
	}
	if payload.Sign.Algorithm != algorithm {
		return fmt.Errorf("unsupported signature algorithm: %s", payload.Sign.Algorithm)
	}

	expected, err := w.mac(payload)
	if err != nil {
		return err
	}
	got, err := base64.StdEncoding.DecodeString(payload.Sign.Value)
	if err != nil || !hmac.Equal(got, expected) {
		return ErrSignatureMismatch
	}
	return nil
}
