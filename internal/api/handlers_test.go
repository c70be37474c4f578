package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/auth"
	"gamma-trading-bot/internal/cache"
	"gamma-trading-bot/internal/consensus"
	"gamma-trading-bot/internal/touch"
)

func testServer(t *testing.T) (*Server, *touch.Tracker, *cache.MarketStateCache) {
	t.Helper()

	tracker := touch.NewTracker("SPY", touch.NewMemoryStore(), touch.DefaultConfig())
	states := cache.NewMarketStateCache(config.RedisConfig{})

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0},
		config.AuthConfig{
			JWTSecret:           "test-secret",
			AccessTokenDuration: time.Hour,
			OperatorUser:        "operator",
			OperatorPassword:    "hunter2",
		},
		states,
		func(symbol string) *touch.Tracker {
			if symbol == "SPY" {
				return tracker
			}
			return nil
		},
	)
	return srv, tracker, states
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username":"operator","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var resp auth.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func authedRequest(srv *Server, token, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _, _ := testServer(t)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, _, _ := testServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username":"operator","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestStateRequiresToken(t *testing.T) {
	srv, _, _ := testServer(t)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/state/SPY", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", w.Code)
	}
}

func TestStateServedFromCache(t *testing.T) {
	srv, _, states := testServer(t)
	token := login(t, srv)

	if w := authedRequest(srv, token, "GET", "/api/v1/state/SPY", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d before any analysis, want 404", w.Code)
	}

	states.PutState(context.Background(), &consensus.MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 661.74,
		Consensus:       82,
		Bias:            consensus.BiasBullish,
	}, &consensus.TradingRecommendation{
		Symbol: "SPY",
		Action: consensus.ActionHold,
		Reason: "no node with positive expected value",
	})

	w := authedRequest(srv, token, "GET", "/api/v1/state/SPY", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var state consensus.MarketState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Consensus != 82 || state.Bias != consensus.BiasBullish {
		t.Errorf("state = %+v", state)
	}

	w = authedRequest(srv, token, "GET", "/api/v1/recommendation/SPY", "")
	if w.Code != http.StatusOK {
		t.Fatalf("recommendation status = %d", w.Code)
	}
	var rec consensus.TradingRecommendation
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode recommendation: %v", err)
	}
	if rec.Action != consensus.ActionHold {
		t.Errorf("action = %q", rec.Action)
	}
}

func TestManualTouchAndOutcome(t *testing.T) {
	srv, tracker, _ := testServer(t)
	token := login(t, srv)

	w := authedRequest(srv, token, "POST", "/api/v1/levels/SPY/touches",
		`{"level": 660, "price": 660.2, "volume_confirmed": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("touch status = %d: %s", w.Code, w.Body.String())
	}

	w = authedRequest(srv, token, "POST", "/api/v1/levels/SPY/outcomes",
		`{"level": 660, "held": true, "subsequent_move": 0.004}`)
	if w.Code != http.StatusOK {
		t.Fatalf("outcome status = %d: %s", w.Code, w.Body.String())
	}

	stats, err := tracker.Stats(context.Background(), 660)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TouchCount != 1 || stats.HoldCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOutcomeWithoutTouchConflicts(t *testing.T) {
	srv, _, _ := testServer(t)
	token := login(t, srv)

	w := authedRequest(srv, token, "POST", "/api/v1/levels/SPY/outcomes",
		`{"level": 999, "held": true}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for outcome on untouched level", w.Code)
	}
}

func TestUnknownSymbolIs404(t *testing.T) {
	srv, _, _ := testServer(t)
	token := login(t, srv)

	w := authedRequest(srv, token, "GET", "/api/v1/levels/TSLA", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProbabilityEndpoint(t *testing.T) {
	srv, tracker, _ := testServer(t)
	token := login(t, srv)

	if _, err := tracker.RecordTouch(context.Background(), 660.1, 660, false, ""); err != nil {
		t.Fatalf("RecordTouch: %v", err)
	}

	w := authedRequest(srv, token, "GET", "/api/v1/levels/SPY/probability?level=660", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var prob touch.Probability
	if err := json.Unmarshal(w.Body.Bytes(), &prob); err != nil {
		t.Fatalf("decode probability: %v", err)
	}
	if prob.Probability != 0.66 {
		t.Errorf("second-touch probability = %v, want 0.66", prob.Probability)
	}
}
