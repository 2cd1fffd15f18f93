package autofix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scopelock/internal/dispatch"
	"scopelock/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	mu       sync.Mutex
	handled  map[string]domain.FixStatus
	claimErr error
}

func newMemLedger() *memLedger {
	return &memLedger{handled: make(map[string]domain.FixStatus)}
}

func (l *memLedger) ClaimDeployment(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return false, l.claimErr
	}
	if _, ok := l.handled[id]; ok {
		return false, nil
	}
	l.handled[id] = domain.FixRunning
	return true, nil
}

func (l *memLedger) FinishDeployment(_ context.Context, id string, status domain.FixStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handled[id] = status
	return nil
}

func (l *memLedger) CountDeployments(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handled), nil
}

func (l *memLedger) status(id string) domain.FixStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handled[id]
}

type promptRecorder struct {
	mu      sync.Mutex
	prompts []string
	run     func(ctx context.Context) (string, error)
}

func (p *promptRecorder) Run(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	if p.run != nil {
		return p.run(ctx)
	}
	return "fixed", nil
}

func (p *promptRecorder) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(ledger *memLedger, runner Runner) *Server {
	return New(Config{
		Path:        DefaultPath,
		MetricsPath: "/metrics",
		TeamSlug:    "mindprotocol",
		FixTimeout:  time.Second,
		Ledger:      ledger,
		Runner:      runner,
		Logger:      quietLogger(),
	})
}

func post(t *testing.T, h http.Handler, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

const failedDeployment = `{
	"id": "dpl_123",
	"name": "scopelock",
	"url": "scopelock-abc.vercel.app",
	"state": "ERROR",
	"type": "LAMBDAS",
	"target": "production",
	"meta": {"githubCommitMessage": "fix: header\n\nlonger body", "githubCommitSha": "abcdef1234567"}
}`

func TestWebhook_FailureInvokesFixOnce(t *testing.T) {
	ledger := newMemLedger()
	runner := &promptRecorder{}
	s := newTestServer(ledger, runner)

	code, body := post(t, s.Handler(), failedDeployment)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "fix_invoked", body["status"])
	assert.Equal(t, "dpl_123", body["deploymentId"])

	code, body = post(t, s.Handler(), failedDeployment)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "already_handled", body["status"])

	s.Wait()
	prompts := runner.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Project: scopelock")
	assert.Contains(t, prompts[0], "Commit: abcdef1 - fix: header\n")
	assert.Contains(t, prompts[0], "Inspector: https://vercel.com/mindprotocol/scopelock/dpl_123")
	assert.Equal(t, domain.FixSucceeded, ledger.status("dpl_123"))
}

func TestWebhook_DeploymentIDWins(t *testing.T) {
	ledger := newMemLedger()
	s := newTestServer(ledger, &promptRecorder{})

	_, body := post(t, s.Handler(), `{"deployment_id":"dpl_a","id":"dpl_b","state":"ERROR","target":"production"}`)
	assert.Equal(t, "dpl_a", body["deploymentId"])
	s.Wait()
}

func TestWebhook_IgnoresNonFailures(t *testing.T) {
	runner := &promptRecorder{}
	s := newTestServer(newMemLedger(), runner)

	for _, payload := range []string{
		`{"id":"1","state":"READY","target":"production"}`,
		`{"id":"2","state":"ERROR","target":"preview"}`,
		`{}`,
	} {
		code, body := post(t, s.Handler(), payload)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ignored", body["status"])
		assert.Equal(t, "not_an_error", body["reason"])
	}
	s.Wait()
	assert.Empty(t, runner.calls())
}

func TestWebhook_BadRequests(t *testing.T) {
	s := newTestServer(newMemLedger(), &promptRecorder{})

	code, _ := post(t, s.Handler(), `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := post(t, s.Handler(), `{"state":"ERROR","target":"production"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing deployment id", body["error"])
}

func TestWebhook_LedgerError(t *testing.T) {
	ledger := newMemLedger()
	ledger.claimErr = errors.New("database is locked")
	runner := &promptRecorder{}
	s := newTestServer(ledger, runner)

	code, _ := post(t, s.Handler(), failedDeployment)
	assert.Equal(t, http.StatusInternalServerError, code)
	s.Wait()
	assert.Empty(t, runner.calls())
}

func TestWebhook_ConcurrentDuplicates(t *testing.T) {
	runner := &promptRecorder{}
	s := newTestServer(newMemLedger(), runner)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, DefaultPath, strings.NewReader(failedDeployment))
			s.Handler().ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()
	s.Wait()
	assert.Len(t, runner.calls(), 1)
}

func TestRunFix_StatusOutcomes(t *testing.T) {
	t.Run("failed", func(t *testing.T) {
		ledger := newMemLedger()
		s := newTestServer(ledger, &promptRecorder{run: func(context.Context) (string, error) {
			return "boom", errors.New("exit status 1")
		}})
		post(t, s.Handler(), failedDeployment)
		s.Wait()
		assert.Equal(t, domain.FixFailed, ledger.status("dpl_123"))
	})

	t.Run("timed out", func(t *testing.T) {
		ledger := newMemLedger()
		s := New(Config{
			FixTimeout: 20 * time.Millisecond,
			Ledger:     ledger,
			Runner: &promptRecorder{run: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}},
			Logger: quietLogger(),
		})
		post(t, s.Handler(), failedDeployment)
		s.Wait()
		assert.Equal(t, domain.FixTimedOut, ledger.status("dpl_123"))
	})
}

func TestRunFix_AnnouncesThroughDispatcher(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	tr := domain.TransportFunc(func(_ context.Context, text string, _ bool) error {
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
		return nil
	})
	s := New(Config{
		TeamSlug: "team",
		Ledger:   newMemLedger(),
		Runner:   &promptRecorder{},
		Notifier: dispatch.New(dispatch.Config{Transport: tr, Pacing: -1, Logger: quietLogger()}),
		Logger:   quietLogger(),
	})

	post(t, s.Handler(), failedDeployment)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "<b>🚨 Deployment failed: scopelock</b>")
	assert.Contains(t, sent[0], `<a href="https://vercel.com/team/scopelock/dpl_123">`)
	assert.Contains(t, sent[1], "✅ Auto-fix for <b>scopelock</b> (dpl_123): succeeded")
}

func TestHealth(t *testing.T) {
	ledger := newMemLedger()
	ledger.handled["old"] = domain.FixSucceeded
	s := newTestServer(ledger, &promptRecorder{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "vercel-auto-fix", body.Service)
	assert.Equal(t, 1, body.HandledDeployments)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(newMemLedger(), &promptRecorder{})
	post(t, s.Handler(), `{"state":"READY"}`)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scopelock_webhooks_received_total")
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 0, Ledger: newMemLedger(), Runner: &promptRecorder{}, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
