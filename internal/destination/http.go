package destination

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/djlord-it/easy-relay/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTP posts the JSON payload with an HMAC signature.
// When url is empty the dispatch endpoint is used.
type HTTP struct {
	client  *http.Client
	url     string
	secret  string
	timeout time.Duration
}

func NewHTTP(url, secret string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{
		client:  &http.Client{},
		url:     url,
		secret:  secret,
		timeout: timeout,
	}
}

func (h *HTTP) WithClient(c *http.Client) *HTTP {
	h.client = c
	return h
}

func (h *HTTP) Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
	target := h.url
	if target == "" {
		target = endpoint
	}
	if target == "" {
		return domain.Failure("no endpoint configured")
	}

	body, err := encode(payload)
	if err != nil {
		return domain.Failure(err.Error())
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return failuref("create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, payload.ID.String())
	if h.secret != "" {
		req.Header.Set(HeaderSignature, ComputeSignature(h.secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return failuref("send: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.Success("accepted (" + resp.Status + ")")
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	msg := "rejected (" + resp.Status + ")"
	if s := strings.TrimSpace(string(snippet)); s != "" {
		msg += ": " + s
	}
	return domain.Failure(msg)
}

func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers to verify incoming payloads.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
