package destination

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestERP_Success(t *testing.T) {
	var doc ERPDocument
	var user, pass, client string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		client = r.Header.Get("sap-client")
		_ = json.NewDecoder(r.Body).Decode(&doc)
		_ = json.NewEncoder(w).Encode(ERPResponse{Status: "S", Message: "IDoc 0815 posted"})
	}))
	defer server.Close()

	result := NewERP(server.URL, "relay", "pw", "100", 5*time.Second).
		Attempt(context.Background(), "", testPayload())

	if !result.Succeeded {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.Message != "IDoc 0815 posted" {
		t.Errorf("message = %q", result.Message)
	}
	if user != "relay" || pass != "pw" {
		t.Errorf("basic auth = %q/%q", user, pass)
	}
	if client != "100" {
		t.Errorf("sap-client = %q, want 100", client)
	}
	if doc.DocNum != "UC123" || doc.Material != "QR123" || doc.Plant != "LINE01" {
		t.Errorf("document = %+v", doc)
	}
	if doc.PostDate != "20240115" || doc.PostTime != "100000" {
		t.Errorf("posting date/time = %s/%s", doc.PostDate, doc.PostTime)
	}
}

func TestERP_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ERPResponse{Status: "E", Message: "material locked"})
	}))
	defer server.Close()

	result := NewERP(server.URL, "", "", "", time.Second).Attempt(context.Background(), "", testPayload())

	if result.Succeeded {
		t.Fatal("expected failure on status E")
	}
	if !strings.Contains(result.Message, "material locked") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestERP_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	result := NewERP(server.URL, "", "", "", time.Second).Attempt(context.Background(), "", testPayload())
	if result.Succeeded {
		t.Fatal("expected failure on 401")
	}
	if !strings.Contains(result.Message, "401") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestERP_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	result := NewERP(server.URL, "", "", "", time.Second).Attempt(context.Background(), "", testPayload())
	if result.Succeeded {
		t.Fatal("expected failure on malformed response")
	}
}
