package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/state"
	"github.com/digital-iq/llm-report/pkg/models"
)

// recordingRunner appends a record per run to the history, like the executor.
type recordingRunner struct {
	mu         sync.Mutex
	history    state.HistoryStore
	identities []string
	ctxErr     error
	err        error
	noRecord   bool
}

func (r *recordingRunner) Run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error) {
	r.mu.Lock()
	r.identities = append(r.identities, identity)
	r.ctxErr = ctx.Err()
	r.mu.Unlock()
	if r.noRecord {
		return nil, errors.New("rejected")
	}
	rec := models.RunRecord{ID: "run-" + req.Text, RequestText: req.Text, Status: models.RunStatusDone}
	if err := r.history.Append(ctx, identity, rec); err != nil {
		return &rec, err
	}
	return &rec, r.err
}

type failingCheck struct{}

func (failingCheck) Ping(context.Context) error { return errors.New("db down") }

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	runner  *recordingRunner
	history *state.MemoryStore
	store   *artifact.LocalStore
}

func newTestEnv(t *testing.T, extra ...ReadinessCheck) *testEnv {
	t.Helper()
	history := state.NewMemoryStore()
	store, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	runner := &recordingRunner{history: history}
	s := New(Options{
		Runner:    runner,
		History:   history,
		Artifacts: store,
		Checks:    extra,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{
		srv:     srv,
		client:  &http.Client{Jar: jar},
		runner:  runner,
		history: history,
		store:   store,
	}
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("responses should carry a request id")
	}
}

func TestGenerate_FormAndJSON(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.PostForm(env.srv.URL+"/generate", url.Values{"request_text": {"  Summarize cluster health "}})
	if err != nil {
		t.Fatalf("POST form: %v", err)
	}
	var rec models.RunRecord
	decodeJSON(t, resp, &rec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if rec.RequestText != "Summarize cluster health" {
		t.Errorf("RequestText = %q", rec.RequestText)
	}

	resp, err = env.client.Post(env.srv.URL+"/generate", "application/json; charset=utf-8", strings.NewReader(`{"request_text":"second"}`))
	if err != nil {
		t.Fatalf("POST json: %v", err)
	}
	decodeJSON(t, resp, &rec)
	if rec.RequestText != "second" {
		t.Errorf("RequestText = %q", rec.RequestText)
	}

	if len(env.runner.identities) != 2 || env.runner.identities[0] != env.runner.identities[1] {
		t.Errorf("the cookie should keep one identity across requests: %v", env.runner.identities)
	}
	if env.runner.ctxErr != nil {
		t.Errorf("run context should be live: %v", env.runner.ctxErr)
	}
}

func TestGenerate_EmptyRequest(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"request_text=", "request_text=%20%20", ""} {
		resp, err := env.client.Post(env.srv.URL+"/generate", "application/x-www-form-urlencoded", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
	if len(env.runner.identities) != 0 {
		t.Error("empty requests must not start a run")
	}
}

func TestGenerate_FailedRunStillReturnsRecord(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = errors.New("render: renderer exited with status 1")

	resp, err := env.client.PostForm(env.srv.URL+"/generate", url.Values{"request_text": {"x"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var rec models.RunRecord
	decodeJSON(t, resp, &rec)
	if resp.StatusCode != http.StatusOK || rec.ID != "run-x" {
		t.Errorf("unexpected response: %d %+v", resp.StatusCode, rec)
	}

	env.runner.noRecord = true
	resp, err = env.client.PostForm(env.srv.URL+"/generate", url.Values{"request_text": {"y"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

// blockingRunner holds each run until released.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	panics  bool
}

func (r *blockingRunner) Run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error) {
	close(r.started)
	<-r.release
	if r.panics {
		panic("runner exploded")
	}
	return &models.RunRecord{ID: "run-1", RequestText: req.Text, Status: models.RunStatusDone}, nil
}

func TestWait_BlocksUntilRunsFinish(t *testing.T) {
	tests := []struct {
		name   string
		panics bool
		status int
	}{
		{name: "finished run", status: http.StatusOK},
		{name: "panicking run", panics: true, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := artifact.NewLocalStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewLocalStore: %v", err)
			}
			runner := &blockingRunner{
				started: make(chan struct{}),
				release: make(chan struct{}),
				panics:  tt.panics,
			}
			s := New(Options{Runner: runner, History: state.NewMemoryStore(), Artifacts: store})
			srv := httptest.NewServer(s.Handler())
			defer srv.Close()

			status := make(chan int, 1)
			go func() {
				resp, err := http.PostForm(srv.URL+"/generate", url.Values{"request_text": {"slow"}})
				if err != nil {
					status <- 0
					return
				}
				resp.Body.Close()
				status <- resp.StatusCode
			}()
			<-runner.started

			waited := make(chan struct{})
			go func() {
				s.Wait()
				close(waited)
			}()

			select {
			case <-waited:
				t.Fatal("Wait returned while a run was in flight")
			case <-time.After(50 * time.Millisecond):
			}

			close(runner.release)
			select {
			case <-waited:
			case <-time.After(5 * time.Second):
				t.Fatal("Wait did not return after the run finished")
			}
			if got := <-status; got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestHistoryAndClear(t *testing.T) {
	env := newTestEnv(t)
	for _, text := range []string{"one", "two"} {
		resp, err := env.client.PostForm(env.srv.URL+"/generate", url.Values{"request_text": {text}})
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
	}

	var body struct {
		History []models.RunRecord `json:"history"`
	}
	resp, err := env.client.Get(env.srv.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	decodeJSON(t, resp, &body)
	if len(body.History) != 2 || body.History[0].RequestText != "one" {
		t.Fatalf("unexpected history: %+v", body.History)
	}

	// Another browser sees nothing.
	resp, err = http.Get(env.srv.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	decodeJSON(t, resp, &body)
	if len(body.History) != 0 {
		t.Errorf("fresh identity should have no history, got %d", len(body.History))
	}

	resp, err = env.client.Post(env.srv.URL+"/clear", "", nil)
	if err != nil {
		t.Fatalf("POST /clear: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}

	resp, err = env.client.Get(env.srv.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	decodeJSON(t, resp, &body)
	if len(body.History) != 0 {
		t.Errorf("history after clear = %d records", len(body.History))
	}
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t)
	content := "%PDF-1.7 test"
	if err := env.store.Put(context.Background(), "abc.pdf", strings.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp, err := env.client.Get(env.srv.URL + "/files/abc.pdf")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(got) != content {
		t.Errorf("unexpected download: %d %q", resp.StatusCode, got)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "abc.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}

	missing, err := env.client.Get(env.srv.URL + "/files/missing.pdf")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", missing.StatusCode)
	}

	bad, err := env.client.Get(env.srv.URL + "/files/report..pdf")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name status = %d, want 400", bad.StatusCode)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	failing := newTestEnv(t, ReadinessCheck{Name: "db", Check: failingCheck{}.Ping})
	resp, err = failing.client.Get(failing.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body struct {
		Status string        `json:"status"`
		Checks []checkResult `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Status != "not_ready" {
		t.Errorf("unexpected response: %d %+v", resp.StatusCode, body)
	}
	if len(body.Checks) != 3 || body.Checks[2].Error != "db down" {
		t.Errorf("unexpected checks: %+v", body.Checks)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/generate")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := Wrap(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, nil, Config{ShutdownTimeout: time.Second}, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_RequiresAddr(t *testing.T) {
	if err := Run(context.Background(), nil, Config{}, http.NotFoundHandler()); err == nil {
		t.Error("expected error for empty addr")
	}
}
