package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	headerRequestID = "X-EasyRelay-Request-ID"
	headerSignature = "X-EasyRelay-Signature"
)

type request struct {
	Timestamp string            `json:"timestamp"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	RequestID string            `json:"request_id,omitempty"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Accepted  bool              `json:"accepted"`
}

type stats struct {
	Count        int64     `json:"count"`
	Rejected     int64     `json:"rejected"`
	LastRequests []request `json:"last_requests"`
	Since        string    `json:"since"`
}

type erpDocument struct {
	DocNum    string `json:"DOCNUM"`
	Reference string `json:"REFID"`
}

type erpResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type config struct {
	secret    string
	username  string
	password  string
	failFirst int64
}

// receiver stands in for the HTTP and ERP systems easyrelay delivers to.
// The first failFirst calls on each endpoint are rejected.
type receiver struct {
	cfg       config
	maxStored int

	mu           sync.Mutex
	count        int64
	rejected     int64
	calls        map[string]int64
	lastRequests []request
	since        time.Time
}

func newReceiver(cfg config) *receiver {
	return &receiver{
		cfg:       cfg,
		maxStored: 50,
		calls:     make(map[string]int64),
		since:     time.Now().UTC(),
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	cfg := config{
		secret:   os.Getenv("SECRET"),
		username: os.Getenv("ERP_USERNAME"),
		password: os.Getenv("ERP_PASSWORD"),
	}
	if v := os.Getenv("FAIL_FIRST"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid FAIL_FIRST: %v", err)
		}
		cfg.failFirst = n
	}

	log.Printf("receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, newReceiver(cfg).routes()))
}

func (rv *receiver) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hook", rv.hookHandler)
	mux.HandleFunc("POST /erp", rv.erpHandler)
	mux.HandleFunc("GET /stats", rv.statsHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, _ *http.Request) {
		rv.mu.Lock()
		rv.count = 0
		rv.rejected = 0
		rv.calls = make(map[string]int64)
		rv.lastRequests = nil
		rv.since = time.Now().UTC()
		rv.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})
	return mux
}

func (rv *receiver) hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rv.cfg.secret != "" && !verifySignature(rv.cfg.secret, body, r.Header.Get(headerSignature)) {
		rv.store(r, body, false)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	n, ok := rv.call(r.URL.Path)
	rv.store(r, body, ok)
	if !ok {
		log.Printf("hook rejected call %d (fail-first)", n)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Printf("hook received #%d: %s", n, string(body))
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"received":%d}`, n)
}

func (rv *receiver) erpHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rv.cfg.username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != rv.cfg.username || pass != rv.cfg.password {
			rv.store(r, body, false)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var doc erpDocument
	if err := json.Unmarshal(body, &doc); err != nil || doc.DocNum == "" {
		rv.store(r, body, false)
		writeERP(w, erpResponse{Status: "E", Message: "malformed document"})
		return
	}

	n, ok := rv.call(r.URL.Path)
	rv.store(r, body, ok)
	if !ok {
		writeERP(w, erpResponse{Status: "E", Message: fmt.Sprintf("posting locked, call %d", n)})
		return
	}

	log.Printf("erp posted %s (ref %s) client=%s", doc.DocNum, doc.Reference, r.Header.Get("sap-client"))
	writeERP(w, erpResponse{Status: "S", Message: "document " + doc.DocNum + " posted"})
}

func (rv *receiver) statsHandler(w http.ResponseWriter, _ *http.Request) {
	rv.mu.Lock()
	s := stats{
		Count:        rv.count,
		Rejected:     rv.rejected,
		LastRequests: rv.lastRequests,
		Since:        rv.since.Format(time.RFC3339),
	}
	rv.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

// call counts a call on path and reports whether it should succeed.
func (rv *receiver) call(path string) (int64, bool) {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	rv.calls[path]++
	n := rv.calls[path]
	return n, n > rv.cfg.failFirst
}

func (rv *receiver) store(r *http.Request, body []byte, accepted bool) {
	headers := make(map[string]string)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	req := request{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: r.Header.Get(headerRequestID),
		Headers:   headers,
		Body:      string(body),
		Accepted:  accepted,
	}

	rv.mu.Lock()
	defer rv.mu.Unlock()
	if accepted {
		rv.count++
	} else {
		rv.rejected++
	}
	rv.lastRequests = append(rv.lastRequests, req)
	if len(rv.lastRequests) > rv.maxStored {
		rv.lastRequests = rv.lastRequests[len(rv.lastRequests)-rv.maxStored:]
	}
}

func writeERP(w http.ResponseWriter, resp erpResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// verifySignature mirrors easyrelay's HMAC-SHA256 hex signature.
func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
