package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ASKEROS1449/router-auto-connect/internal/config"
	"github.com/ASKEROS1449/router-auto-connect/internal/engine"
	"github.com/ASKEROS1449/router-auto-connect/internal/journal"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			TargetRanges: []config.RangeSpec{
				{Low: "100.60.0.0", High: "100.80.0.0"},
			},
			Candidates:     []config.CandidateSpec{{Port: 443, Scheme: "https"}},
			ProbeTimeoutMs: 200,
			CooldownMs:     5000,
			PortPriority:   map[string]int{"443": 3},
		},
		API: config.APIConfig{
			Addr:               ":0",
			RateLimitPerMinute: 600,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	mgr := journal.NewManager(nil, 0, 32)
	eng, err := engine.New(cfg, nil, mgr)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewServer(cfg, eng, mgr, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := doJSON(t, s, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("health: status %d body %q", rr.Code, rr.Body.String())
	}
}

func TestNavigationEventValidation(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := doJSON(t, s, http.MethodPost, "/v1/navigation-event", `{"url": "http://100.70.0.1/"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing nav_context: status %d, want 400", rr.Code)
	}

	rr = doJSON(t, s, http.MethodPost, "/v1/navigation-event", `not json`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d, want 400", rr.Code)
	}
}

func TestNavigationEventSuppressesNonTarget(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := doJSON(t, s, http.MethodPost, "/v1/navigation-event",
		`{"nav_context": "tab1", "url": "http://192.168.1.1/"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}

	var resp navigationEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Action != "suppress" || resp.Reason != engine.ReasonNotTarget {
		t.Fatalf("got %+v, want suppress/not_target", resp)
	}
}

func TestNavigationEventIgnoresSubframes(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := doJSON(t, s, http.MethodPost, "/v1/navigation-event",
		`{"nav_context": "tab1", "url": "http://100.70.0.1/", "main_frame": false}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}

	var resp navigationEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Action != "suppress" || resp.Reason != engine.ReasonNotMainFrame {
		t.Fatalf("got %+v, want suppress/not_main_frame", resp)
	}
}

func TestStatAndJournalEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	// Generate one decision so the journal is non-empty.
	doJSON(t, s, http.MethodPost, "/v1/navigation-event",
		`{"nav_context": "tab1", "url": "http://192.168.1.1/"}`, nil)

	rr := doJSON(t, s, http.MethodGet, "/stat", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stat: status %d, want 200", rr.Code)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["total_events"].(float64) != 1 {
		t.Fatalf("total_events = %v, want 1", stats["total_events"])
	}

	rr = doJSON(t, s, http.MethodGet, "/journal?limit=10", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("journal: status %d, want 200", rr.Code)
	}

	rr = doJSON(t, s, http.MethodGet, "/journal?limit=abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d, want 400", rr.Code)
	}
}

func TestRateLimiterLowRateStillAllowsRequests(t *testing.T) {
	// A configured rate below 10/min must not round the burst down to
	// zero, which would reject every request.
	rl := NewRateLimiter(5)
	if !rl.GetLimiter("198.51.100.1").Allow() {
		t.Fatal("first request rejected at low configured rate")
	}

	cfg := testConfig()
	cfg.API.RateLimitPerMinute = 5
	cfg.API.EnableIPRateLimit = true
	s := newTestServer(t, cfg)

	rr := doJSON(t, s, http.MethodGet, "/stat", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("rate-limited stat: status %d, want 200", rr.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret")

	cfg := testConfig()
	cfg.API.EnableAPIKeyAuth = true
	cfg.API.APIKeyEnv = "TEST_API_KEY"
	s := newTestServer(t, cfg)

	rr := doJSON(t, s, http.MethodGet, "/stat", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status %d, want 401", rr.Code)
	}

	rr = doJSON(t, s, http.MethodGet, "/stat", "", map[string]string{"X-Api-Key": "secret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("with key: status %d, want 200", rr.Code)
	}

	// Health stays public.
	rr = doJSON(t, s, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health with auth on: status %d, want 200", rr.Code)
	}
}
