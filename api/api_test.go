package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slskd/slskd/internal/search"
	"github.com/slskd/slskd/internal/state"
)

func TestGetApplicationReturnsSnapshot(t *testing.T) {
	s := NewServer("1.0.0-test", nil)
	s.State = state.New("1.0.0-test")
	s.State.SetPendingRestart(true)

	req := httptest.NewRequest(http.MethodGet, "/application", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp applicationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "1.0.0-test" || !resp.PendingRestart {
		t.Fatalf("got %+v", resp)
	}
}

func TestGCEndpointRuns(t *testing.T) {
	s := NewServer("dev", nil)
	req := httptest.NewRequest(http.MethodPost, "/application/gc", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

type stubPeerClient struct{}

func (stubPeerClient) BroadcastSearch(ctx context.Context, token int32, text string) error { return nil }

func newTestSearchLifecycle(t *testing.T) *search.Lifecycle {
	t.Helper()
	store, err := search.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return search.NewLifecycle(store, stubPeerClient{}, search.Limits{MaxResponses: 100, MaxFiles: 1000})
}

func TestCreateAndGetSearch(t *testing.T) {
	s := NewServer("dev", nil)
	s.Searches = newTestSearchLifecycle(t)

	body := bytes.NewBufferString(`{"searchText":"foo bar"}`)
	req := httptest.NewRequest(http.MethodPost, "/searches", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.State != "in_progress" {
		t.Fatalf("expected in_progress, got %s", created.State)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/searches/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}
}

func TestCancelUnknownSearchReturnsConflictOrNotFound(t *testing.T) {
	s := NewServer("dev", nil)
	s.Searches = newTestSearchLifecycle(t)

	req := httptest.NewRequest(http.MethodPut, "/searches/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict && rec.Code != http.StatusNotFound {
		t.Fatalf("expected cancel of an unknown search to return 409 or 404, got %d", rec.Code)
	}
}

func TestNetworkSharesWithoutRelayConfiguredIsUnavailable(t *testing.T) {
	s := NewServer("dev", nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "agent-a")
	mw.WriteField("credential", "x")
	part, _ := mw.CreateFormFile("database", "shares.db")
	part.Write([]byte("data"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/network/shares/tok123", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := NewServer("dev", nil)
	s.State = state.New("dev")
	s.RegisterMetrics()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("slskd_connection_state")) {
		t.Fatalf("expected metrics output to contain slskd_connection_state, got:\n%s", rec.Body.String())
	}
}
