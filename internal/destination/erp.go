package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// ERPDocument is the inbound document shape expected by the ERP connector.
type ERPDocument struct {
	DocNum    string `json:"DOCNUM"`
	Material  string `json:"MATNR"`
	Plant     string `json:"WERKS"`
	WorkCtr   string `json:"ARBPL"`
	PostDate  string `json:"BUDAT"`
	PostTime  string `json:"UZEIT"`
	Reference string `json:"REFID"`
}

// ERPResponse status is "S" on success and "E" on error.
type ERPResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ERP posts documents to an ERP connector with basic auth.
type ERP struct {
	client    *http.Client
	url       string
	username  string
	password  string
	sapClient string
	timeout   time.Duration
}

func NewERP(url, username, password, sapClient string, timeout time.Duration) *ERP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &ERP{
		client:    &http.Client{},
		url:       url,
		username:  username,
		password:  password,
		sapClient: sapClient,
		timeout:   timeout,
	}
}

func (e *ERP) WithClient(c *http.Client) *ERP {
	e.client = c
	return e
}

func NewERPDocument(p domain.Payload) ERPDocument {
	return ERPDocument{
		DocNum:    p.PayloadUniqueCode,
		Material:  p.PayloadCode,
		Plant:     p.ResourceCode,
		WorkCtr:   p.ResourceName,
		PostDate:  p.ScheduledAt.Format("20060102"),
		PostTime:  p.ScheduledAt.Format("150405"),
		Reference: p.ID.String(),
	}
}

func (e *ERP) Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
	target := e.url
	if target == "" {
		target = endpoint
	}

	body, err := json.Marshal(NewERPDocument(payload))
	if err != nil {
		return failuref("marshal: %v", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return failuref("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, payload.ID.String())
	if e.sapClient != "" {
		req.Header.Set("sap-client", e.sapClient)
	}
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return failuref("send: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return failuref("read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failuref("erp rejected (%s)", resp.Status)
	}

	var out ERPResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failuref("decode response: %v", err)
	}

	switch out.Status {
	case "S":
		if out.Message == "" {
			out.Message = "processed"
		}
		return domain.Success(out.Message)
	default:
		return domain.Failure(fmt.Sprintf("erp status %q: %s", out.Status, out.Message))
	}
}
