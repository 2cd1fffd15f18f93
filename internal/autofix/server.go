// Package autofix listens for failed production deployments and hands each
// one, exactly once, to a CLI agent that attempts a fix.
package autofix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"scopelock/internal/dispatch"
	"scopelock/internal/domain"
	"scopelock/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	serviceName     = "vercel-auto-fix"
	DefaultPath     = "/vercel-webhook"
	DefaultTimeout  = 30 * time.Minute
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Host        string
	Port        int
	Path        string // webhook route, default /vercel-webhook
	MetricsPath string // empty = no metrics route
	TeamSlug    string
	FixTimeout  time.Duration
	Ledger      domain.DeploymentLedger
	Runner      Runner
	Notifier    *dispatch.Dispatcher // optional Telegram announcements
	Logger      *slog.Logger
}

// Server is the webhook listener.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	logger  *slog.Logger
	started time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	fixes   sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.FixTimeout <= 0 {
		cfg.FixTimeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		started: time.Now(),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))

	e.GET("/health", s.handleHealth)
	e.POST(cfg.Path, s.handleWebhook)
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(metrics.Collector.Handler()))
	}
	s.echo = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr is the listen address built from Host and Port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// cancels fixes still running.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("autofix listener started",
			"addr", s.Addr(),
			"webhook", s.cfg.Path,
		)
		if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if err != nil {
			return fmt.Errorf("autofix listener: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("autofix listener stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	s.cancel()
	s.Wait()
	return err
}

// Wait blocks until every launched fix has finished.
func (s *Server) Wait() { s.fixes.Wait() }

type healthResponse struct {
	Status             string  `json:"status"`
	Service            string  `json:"service"`
	Uptime             float64 `json:"uptime"`
	HandledDeployments int     `json:"handledDeployments"`
}

func (s *Server) handleHealth(c echo.Context) error {
	n, err := s.cfg.Ledger.CountDeployments(c.Request().Context())
	if err != nil {
		s.logger.Error("cannot count handled deployments", "err", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "error", "error": "ledger unavailable"})
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:             "ok",
		Service:            serviceName,
		Uptime:             time.Since(s.started).Seconds(),
		HandledDeployments: n,
	})
}

type webhookResponse struct {
	Status       string `json:"status"`
	DeploymentID string `json:"deploymentId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (s *Server) handleWebhook(c echo.Context) error {
	metrics.WebhooksReceived.Inc()

	var d Deployment
	if err := json.NewDecoder(c.Request().Body).Decode(&d); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
	}

	s.logger.Info("webhook received",
		"project", d.Name,
		"state", d.State,
		"target", d.Target,
		"type", d.Type,
	)

	if !d.IsProductionFailure() {
		return c.JSON(http.StatusOK, webhookResponse{Status: "ignored", Reason: "not_an_error"})
	}

	id := d.Key()
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing deployment id"})
	}

	claimed, err := s.cfg.Ledger.ClaimDeployment(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("cannot claim deployment", "deployment_id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
	}
	if !claimed {
		s.logger.Info("deployment already handled", "deployment_id", id)
		return c.JSON(http.StatusOK, webhookResponse{Status: "already_handled", DeploymentID: id})
	}

	s.logger.Warn("deployment failure detected", "deployment_id", id, "project", d.Name)
	s.fixes.Add(1)
	go func() {
		defer s.fixes.Done()
		s.runFix(d)
	}()

	return c.JSON(http.StatusOK, webhookResponse{
		Status:       "fix_invoked",
		DeploymentID: id,
		Message:      "investigating the failure",
	})
}

func (s *Server) runFix(d Deployment) {
	id := d.Key()
	s.announce(failureNotice(s.cfg.TeamSlug, d))

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.FixTimeout)
	defer cancel()

	metrics.FixesInvoked.Inc()
	metrics.FixesRunning.Inc()
	start := time.Now()
	output, err := s.cfg.Runner.Run(ctx, BuildPrompt(s.cfg.TeamSlug, d))
	metrics.FixesRunning.Dec()

	status := domain.FixSucceeded
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = domain.FixTimedOut
	case err != nil:
		status = domain.FixFailed
	}

	if err != nil {
		s.logger.Error("fix command failed",
			"deployment_id", id,
			"status", status,
			"duration", time.Since(start),
			"err", err,
			"output", output,
		)
	} else {
		s.logger.Info("fix command completed",
			"deployment_id", id,
			"duration", time.Since(start),
			"output_len", len(output),
		)
	}

	if err := s.cfg.Ledger.FinishDeployment(context.Background(), id, status); err != nil {
		s.logger.Warn("cannot record fix status", "deployment_id", id, "err", err)
	}
	s.announce(resultNotice(d, status))
}

func (s *Server) announce(text string) {
	if s.cfg.Notifier == nil {
		return
	}
	if _, err := s.cfg.Notifier.Dispatch(s.baseCtx, text); err != nil {
		s.logger.Warn("cannot send telegram notice", "err", err)
	}
}

func failureNotice(team string, d Deployment) string {
	esc := dispatch.EscapeHTML
	return fmt.Sprintf("<b>🚨 Deployment failed: %s</b>\n\nCommit: %s - %s\n<a href=\"%s\">Inspector</a>\n\n🤖 Auto-fix started.",
		esc(d.Name), esc(d.ShortSHA()), esc(d.CommitTitle()), esc(InspectorURL(team, d)))
}

func resultNotice(d Deployment, status domain.FixStatus) string {
	icon := "✅"
	if status != domain.FixSucceeded {
		icon = "❌"
	}
	return fmt.Sprintf("%s Auto-fix for <b>%s</b> (%s): %s",
		icon, dispatch.EscapeHTML(d.Name), dispatch.EscapeHTML(d.Key()), status)
}
