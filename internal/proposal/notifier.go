package proposal

import (
	"context"
	"log/slog"
	"time"

	"scopelock/internal/dispatch"
	"scopelock/internal/domain"
)

// Part names the stage of a notification an attempt belongs to.
type Part string

const (
	PartMain      Part = "main"
	PartQuestions Part = "questions"
)

const (
	DefaultLeadIn         = 500 * time.Millisecond
	DefaultQuestionPacing = 300 * time.Millisecond
)

type NotifierConfig struct {
	Transport      domain.Transport
	TargetLength   int
	MaxLength      int
	Pacing         time.Duration // between chunks of the main message
	LeadIn         time.Duration // before the questions header; negative = none
	QuestionPacing time.Duration // before each question; negative = none
	Recorder       domain.AttemptRecorder
	OnAttempt      func(Progress)
	Logger         *slog.Logger
}

// Progress ties one delivery attempt to the message it belongs to.
// For questions, Message 0 is the header and n is question n.
type Progress struct {
	Part    Part
	Message int
	Final   bool // last chunk of Message
	Attempt domain.Attempt
}

// Notifier sends a proposal as a split main message followed by its questions.
type Notifier struct {
	main        *dispatch.Dispatcher
	questionCfg dispatch.Config
	onAttempt   func(Progress)
	leadIn      time.Duration
	logger      *slog.Logger
}

// Report holds the main-message and question dispatch results.
type Report struct {
	Chunks    dispatch.Result
	Questions dispatch.Result
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	leadIn := cfg.LeadIn
	if leadIn == 0 {
		leadIn = DefaultLeadIn
	}
	questionPacing := cfg.QuestionPacing
	if questionPacing == 0 {
		questionPacing = DefaultQuestionPacing
	}
	base := dispatch.Config{
		Transport:    cfg.Transport,
		TargetLength: cfg.TargetLength,
		MaxLength:    cfg.MaxLength,
		Recorder:     cfg.Recorder,
		Logger:       logger,
	}
	mainCfg, questionCfg := base, base
	mainCfg.Pacing = cfg.Pacing
	questionCfg.Pacing = questionPacing
	if cfg.OnAttempt != nil {
		mainCfg.OnAttempt = func(a domain.Attempt) {
			cfg.OnAttempt(Progress{Part: PartMain, Final: a.ChunkIndex == a.ChunkCount-1, Attempt: a})
		}
	}

	return &Notifier{
		main:        dispatch.New(mainCfg),
		questionCfg: questionCfg,
		onAttempt:   cfg.OnAttempt,
		leadIn:      leadIn,
		logger:      logger,
	}
}

// Notify delivers p. It stops at the first failed message; the returned
// Report still describes what was delivered.
func (n *Notifier) Notify(ctx context.Context, p *Proposal) (Report, error) {
	var rep Report
	if err := p.Validate(); err != nil {
		return rep, err
	}

	res, err := n.main.Dispatch(ctx, FormatMain(p))
	rep.Chunks = res
	if err != nil {
		return rep, err
	}
	n.logger.Info("proposal sent", "job", p.JobTitle, "chunks", res.Delivered)

	msgs := FormatQuestions(p)
	if len(msgs) == 0 {
		return rep, nil
	}
	if err := pause(ctx, n.leadIn); err != nil {
		return rep, err
	}

	// A question longer than the hard limit still goes out in pieces; owner
	// maps each chunk back to its message.
	var (
		chunks []string
		owner  []int
	)
	for i, m := range msgs {
		for _, c := range dispatch.Split(m, n.questionCfg.TargetLength, n.questionCfg.MaxLength) {
			chunks = append(chunks, c)
			owner = append(owner, i)
		}
	}

	qcfg := n.questionCfg
	if n.onAttempt != nil {
		qcfg.OnAttempt = func(a domain.Attempt) {
			i := a.ChunkIndex
			final := i == len(owner)-1 || owner[i+1] != owner[i]
			n.onAttempt(Progress{Part: PartQuestions, Message: owner[i], Final: final, Attempt: a})
		}
	}
	res, err = dispatch.New(qcfg).Deliver(ctx, chunks)
	rep.Questions = res
	if err != nil {
		return rep, err
	}
	n.logger.Info("proposal questions sent", "job", p.JobTitle, "questions", len(p.Questions))
	return rep, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
