// Package dispatch splits long text into Telegram-safe chunks and delivers
// them in order through a domain.Transport.
//
// Delivery is strictly sequential: chunk N+1 is never sent before chunk N has
// either been accepted or failed for good. A chunk whose markup is rejected is
// resent once as plain text; any other failure aborts the remaining chunks.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scopelock/internal/domain"
	"scopelock/internal/metrics"

	"github.com/google/uuid"
)

// DefaultPacing is the pause between consecutive chunks of one dispatch.
const DefaultPacing = 500 * time.Millisecond

// Config configures a Dispatcher.
type Config struct {
	Transport    domain.Transport
	TargetLength int           // soft wrap target (default 500)
	MaxLength    int           // hard per-message limit (default 4096)
	Pacing       time.Duration // 0 = DefaultPacing, negative = no pause
	Recorder     domain.AttemptRecorder
	OnAttempt    func(domain.Attempt) // optional progress callback
	Logger       *slog.Logger
}

// Dispatcher holds only immutable configuration; concurrent dispatches
// do not share any state.
type Dispatcher struct {
	transport domain.Transport
	target    int
	max       int
	pacing    time.Duration
	recorder  domain.AttemptRecorder
	onAttempt func(domain.Attempt)
	logger    *slog.Logger
}

func New(cfg Config) *Dispatcher {
	target, max := normalizeLimits(cfg.TargetLength, cfg.MaxLength)
	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = DefaultPacing
	}
	if pacing < 0 {
		pacing = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: cfg.Transport,
		target:    target,
		max:       max,
		pacing:    pacing,
		recorder:  cfg.Recorder,
		onAttempt: cfg.OnAttempt,
		logger:    logger,
	}
}

// Result summarises one Deliver call.
type Result struct {
	DispatchID string
	Total      int
	Delivered  int
	Fallbacks  int // chunks that needed the plain-text retry
	Attempts   []domain.Attempt
}

// DeliveryError reports where a dispatch stopped. Chunks before Index were
// delivered and are not rolled back.
type DeliveryError struct {
	Delivered int
	Total     int
	Index     int // zero-based index of the chunk that failed
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("chunk %d/%d failed after %d delivered: %v", e.Index+1, e.Total, e.Delivered, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Split applies the dispatcher's limits to text.
func (d *Dispatcher) Split(text string) []string {
	return Split(text, d.target, d.max)
}

// Dispatch validates, splits and delivers text.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, domain.ErrEmptyMessage
	}
	return d.Deliver(ctx, d.Split(text))
}

// Deliver sends chunks in order with pacing between them.
func (d *Dispatcher) Deliver(ctx context.Context, chunks []string) (Result, error) {
	res := Result{
		DispatchID: uuid.NewString(),
		Total:      len(chunks),
	}
	start := time.Now()
	defer func() {
		metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, d.pacing); err != nil {
				return res, d.abort(&res, i, err)
			}
		}
		if err := d.deliverChunk(ctx, &res, i, chunk); err != nil {
			return res, d.abort(&res, i, err)
		}
		res.Delivered++
		metrics.ChunksDelivered.Inc()
	}

	d.logger.Debug("dispatch complete",
		"dispatch_id", res.DispatchID,
		"chunks", res.Total,
		"fallbacks", res.Fallbacks,
	)
	return res, nil
}

// deliverChunk runs the per-chunk state machine:
// Sending -> Delivered | FormatRejected -> RetryingPlain -> Delivered | Failed.
func (d *Dispatcher) deliverChunk(ctx context.Context, res *Result, i int, chunk string) error {
	err := d.transport.Send(ctx, chunk, true)
	if err == nil {
		d.record(ctx, res, i, true, domain.OutcomeDelivered, "", chunk)
		return nil
	}
	if !domain.IsFormatRejection(err) {
		d.record(ctx, res, i, true, domain.OutcomeFailed, err.Error(), chunk)
		return err
	}

	d.record(ctx, res, i, true, domain.OutcomeFormatRejected, err.Error(), chunk)
	d.logger.Warn("markup rejected, retrying as plain text",
		"dispatch_id", res.DispatchID,
		"chunk", i+1,
		"err", err,
	)
	res.Fallbacks++
	metrics.FormatFallbacks.Inc()

	if err := d.transport.Send(ctx, chunk, false); err != nil {
		d.record(ctx, res, i, false, domain.OutcomeFailed, err.Error(), chunk)
		return fmt.Errorf("plain-text retry: %w", err)
	}
	d.record(ctx, res, i, false, domain.OutcomeDelivered, "", chunk)
	return nil
}

func (d *Dispatcher) abort(res *Result, i int, err error) error {
	metrics.DeliveryFailures.Inc()
	d.logger.Error("dispatch aborted",
		"dispatch_id", res.DispatchID,
		"chunk", i+1,
		"total", res.Total,
		"delivered", res.Delivered,
		"err", err,
	)
	return &DeliveryError{
		Delivered: res.Delivered,
		Total:     res.Total,
		Index:     i,
		Err:       err,
	}
}

func (d *Dispatcher) record(ctx context.Context, res *Result, i int, rich bool, outcome domain.Outcome, detail, chunk string) {
	a := domain.Attempt{
		DispatchID: res.DispatchID,
		ChunkIndex: i,
		ChunkCount: res.Total,
		RichText:   rich,
		Outcome:    outcome,
		Detail:     detail,
		Length:     textLen(chunk),
		At:         time.Now(),
	}
	res.Attempts = append(res.Attempts, a)

	if d.recorder != nil {
		// The journal is best effort; a write failure never aborts delivery.
		if err := d.recorder.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
			d.logger.Warn("cannot record delivery attempt", "dispatch_id", a.DispatchID, "err", err)
		}
	}
	if d.onAttempt != nil {
		d.onAttempt(a)
	}
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
