package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zorbit-ai/askhr-go/internal/agent"
	"github.com/zorbit-ai/askhr-go/internal/ingestion"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/service"
)

// okHandler is a trivial 200 handler used by middleware tests.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// fakeBackend is a test double for the service facade.
type fakeBackend struct {
	queryAnswers map[string]service.QueryAnswer
	queryErr     error

	qaResult   *ingestion.QAResult
	fileResult *ingestion.FileResult
	ingestErr  error

	deleteResult *service.DeleteResult
	updateResult *service.UpdateResult
	fileDelete   *service.FileDeleteResult
	mutateErr    error

	lastTenant   string
	lastStrategy string
}

func (f *fakeBackend) Query(_ context.Context, tenant string, _ map[string]string, strategy string) (map[string]service.QueryAnswer, error) {
	f.lastTenant = tenant
	f.lastStrategy = strategy
	return f.queryAnswers, f.queryErr
}

func (f *fakeBackend) IngestQA(_ context.Context, tenant string, _ []map[string]string) (*ingestion.QAResult, error) {
	f.lastTenant = tenant
	return f.qaResult, f.ingestErr
}

func (f *fakeBackend) IngestFile(_ context.Context, tenant, _, _ string) (*ingestion.FileResult, error) {
	f.lastTenant = tenant
	return f.fileResult, f.ingestErr
}

func (f *fakeBackend) DeleteQA(_ context.Context, tenant string, _ []int64) (*service.DeleteResult, error) {
	f.lastTenant = tenant
	return f.deleteResult, f.mutateErr
}

func (f *fakeBackend) UpdateQA(_ context.Context, tenant string, _ []service.QAUpdate) (*service.UpdateResult, error) {
	f.lastTenant = tenant
	return f.updateResult, f.mutateErr
}

func (f *fakeBackend) DeleteByFile(_ context.Context, tenant string, _ []string) (*service.FileDeleteResult, error) {
	f.lastTenant = tenant
	return f.fileDelete, f.mutateErr
}

// fakeChatter is a test double for the agent router.
type fakeChatter struct {
	reply *agent.Reply
	err   error
}

func (f *fakeChatter) Chat(context.Context, string, string, string) (*agent.Reply, error) {
	return f.reply, f.err
}

func newTestServer(t *testing.T, svc backend, router chatter) *Server {
	t.Helper()
	s, err := New(svc, router, &Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{queryAnswers: map[string]service.QueryAnswer{
		"q1": {Question: "How much leave?", Answer: "25 days."},
	}}
	s := newTestServer(t, svc, nil)

	w := postJSON(t, s, http.MethodPost, "/api/rag", queryRequest{
		UserType: "eor",
		Queries:  map[string]string{"q1": "How much leave?"},
		Strategy: service.StrategyInformationCollector,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp map[string]service.QueryAnswer
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["q1"].Answer != "25 days." {
		t.Fatalf("answer = %q", resp["q1"].Answer)
	}
	if svc.lastStrategy != service.StrategyInformationCollector {
		t.Fatalf("strategy = %q", svc.lastStrategy)
	}
}

func TestHandleQuery_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"no tenant", rag.ErrNoTenant, http.StatusBadRequest},
		{"unknown strategy", fmt.Errorf("service: %q: %w", "x", service.ErrUnknownStrategy), http.StatusBadRequest},
		{"not found", fmt.Errorf("wrapped: %w", rag.ErrNotFound), http.StatusNotFound},
		{"malformed output", fmt.Errorf("wrapped: %w", rag.ErrMalformedOutput), http.StatusBadGateway},
		{"storage down", fmt.Errorf("wrapped: %w", rag.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeBackend{queryErr: tc.err}, nil)

			w := postJSON(t, s, http.MethodPost, "/api/rag", queryRequest{
				UserType: "eor",
				Queries:  map[string]string{"q": "hi"},
			})

			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestHandleQuery_EmptyQueries(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)

	w := postJSON(t, s, http.MethodPost, "/api/rag", queryRequest{UserType: "eor"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleIngest_QAMode(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{qaResult: &ingestion.QAResult{IDs: []int64{1, 2}, Unprocessed: []string{"q-2"}}}
	s := newTestServer(t, svc, nil)

	w := postJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		UserType: "eor",
		Records: []map[string]string{
			{"question": "Q1?", "answer": "A1."},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := w.Body.Bytes()
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var processed []int64
	if err := json.Unmarshal(resp["processed"], &processed); err != nil {
		t.Fatalf("processed key missing or malformed: %v", err)
	}
	var unprocessed []string
	if err := json.Unmarshal(resp["unprocessed"], &unprocessed); err != nil {
		t.Fatalf("unprocessed key missing or malformed: %v", err)
	}
	if len(processed) != 2 || len(unprocessed) != 1 || unprocessed[0] != "q-2" {
		t.Fatalf("unexpected result %s", body)
	}
}

func TestHandleIngest_FileMode(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{fileResult: &ingestion.FileResult{DocIDs: []string{"c1"}}}
	s := newTestServer(t, svc, nil)

	w := postJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		UserType: "eor",
		Filename: "handbook.txt",
		Text:     "Welcome to the team.",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleIngest_ModeValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)

	// Neither mode.
	w := postJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{UserType: "eor"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty request: status = %d, want 400", w.Code)
	}

	// Both modes.
	w = postJSON(t, s, http.MethodPost, "/api/ingest", ingestRequest{
		UserType: "eor",
		Records:  []map[string]string{{"question": "q", "answer": "a"}},
		Filename: "f.txt",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("both modes: status = %d, want 400", w.Code)
	}
}

func TestHandleDeleteQA(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{deleteResult: &service.DeleteResult{
		Deleted:    []int64{1},
		NotDeleted: []service.Failure{{ID: 2, Reason: "not found"}},
	}}
	s := newTestServer(t, svc, nil)

	w := postJSON(t, s, http.MethodDelete, "/api/qa", deleteQARequest{
		UserType: "eor",
		IDs:      []int64{1, 2},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp service.DeleteResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Deleted) != 1 || len(resp.NotDeleted) != 1 {
		t.Fatalf("unexpected result %+v", resp)
	}
}

func TestHandleUpdateQA_RequiresUpdates(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)

	w := postJSON(t, s, http.MethodPut, "/api/qa", updateQARequest{UserType: "eor"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleDeleteFiles_NotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{mutateErr: fmt.Errorf("no chunks: %w", rag.ErrNotFound)}
	s := newTestServer(t, svc, nil)

	w := postJSON(t, s, http.MethodDelete, "/api/files", deleteFilesRequest{
		UserType:  "eor",
		Filenames: []string{"ghost.txt"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleAgent_OK(t *testing.T) {
	t.Parallel()

	router := &fakeChatter{reply: &agent.Reply{
		Answer: "Head to the support page.",
		Link:   "https://dev.zorbit.ai/support",
		Source: agent.SourceRedirect,
	}}
	s := newTestServer(t, &fakeBackend{}, router)

	w := postJSON(t, s, http.MethodPost, "/api/agent", agentRequest{
		Session:  "s1",
		UserType: "eor",
		Message:  "How do I contact support?",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp agent.Reply
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != agent.SourceRedirect || resp.Link == "" {
		t.Fatalf("unexpected reply %+v", resp)
	}
}

func TestHandleAgent_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)

	w := postJSON(t, s, http.MethodPost, "/api/agent", agentRequest{
		Session: "s1", UserType: "eor", Message: "hi",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint_Exposed(t *testing.T) {
	t.Parallel()

	svc := &fakeBackend{queryAnswers: map[string]service.QueryAnswer{}}
	s := newTestServer(t, svc, nil)

	// Drive one query so the counters have samples.
	postJSON(t, s, http.MethodPost, "/api/rag", queryRequest{
		UserType: "eor",
		Queries:  map[string]string{"q": "hi"},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !bytes.Contains([]byte(body), []byte("askhr_rag_queries_total")) {
		t.Fatalf("expected askhr_rag_queries_total in metrics output")
	}
	if !bytes.Contains([]byte(body), []byte("askhr_http_requests_total")) {
		t.Fatalf("expected askhr_http_requests_total in metrics output")
	}
}
