package proposal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"scopelock/internal/dispatch"
	"scopelock/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	text string
	rich bool
	at   time.Time
}

type recordingTransport struct {
	mu    sync.Mutex
	sent  []sent
	reply func(n int, text string, rich bool) error
}

func (r *recordingTransport) Send(_ context.Context, text string, rich bool) error {
	r.mu.Lock()
	n := len(r.sent)
	r.sent = append(r.sent, sent{text: text, rich: rich, at: time.Now()})
	r.mu.Unlock()
	if r.reply != nil {
		return r.reply(n, text, rich)
	}
	return nil
}

func (r *recordingTransport) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		out = append(out, s.text)
	}
	return out
}

func newTestNotifier(tr domain.Transport) *Notifier {
	return NewNotifier(NotifierConfig{
		Transport:      tr,
		Pacing:         time.Millisecond,
		LeadIn:         time.Millisecond,
		QuestionPacing: time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestNotify_MainThenQuestions(t *testing.T) {
	tr := &recordingTransport{}
	p := sample()

	rep, err := newTestNotifier(tr).Notify(context.Background(), p)
	require.NoError(t, err)

	texts := tr.texts()
	require.Len(t, texts, rep.Chunks.Delivered+3)
	assert.Equal(t, 3, rep.Questions.Delivered)
	assert.True(t, strings.HasPrefix(texts[0], "<b>🎯 STRONG GO"))

	q := texts[len(texts)-3:]
	assert.Equal(t, "<b>❓ Questions for Client (2):</b>", q[0])
	assert.Equal(t, "<b>Q1:</b> Is the API &lt;REST&gt; or GraphQL?", q[1])
	assert.Equal(t, "<b>Q2:</b> Deadline?", q[2])

	// The main message reassembles from its chunks.
	main := strings.Join(texts[:rep.Chunks.Delivered], " ")
	assert.Contains(t, main, "I can ship this in a week.")
	assert.Contains(t, main, "View Job on upwork")
}

func TestNotify_NoQuestions(t *testing.T) {
	tr := &recordingTransport{}
	p := sample()
	p.Questions = nil

	rep, err := newTestNotifier(tr).Notify(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, rep.Questions.Total)
	assert.Len(t, tr.texts(), rep.Chunks.Delivered)
}

func TestNotify_LongProposalIsSplit(t *testing.T) {
	tr := &recordingTransport{}
	p := sample()
	p.ProposalText = strings.Repeat("This sentence is part of a long proposal. ", 60)

	rep, err := newTestNotifier(tr).Notify(context.Background(), p)
	require.NoError(t, err)
	assert.Greater(t, rep.Chunks.Delivered, 1)
	for _, text := range tr.texts() {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(text))), dispatch.DefaultMaxLength)
	}
}

func TestNotify_StopsOnMainFailure(t *testing.T) {
	boom := errors.New("network down")
	tr := &recordingTransport{reply: func(int, string, bool) error { return boom }}

	rep, err := newTestNotifier(tr).Notify(context.Background(), sample())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, rep.Chunks.Delivered)
	assert.Len(t, tr.texts(), 1, "questions are never attempted after a failure")
}

func TestNotify_QuestionFallsBackToPlainText(t *testing.T) {
	tr := &recordingTransport{}
	tr.reply = func(_ int, text string, rich bool) error {
		if rich && strings.HasPrefix(text, "<b>Q2:") {
			return &domain.FormatRejection{Detail: "can't parse entities"}
		}
		return nil
	}

	rep, err := newTestNotifier(tr).Notify(context.Background(), sample())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Questions.Fallbacks)
	assert.Equal(t, 3, rep.Questions.Delivered)
}

func TestNotify_InvalidProposal(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestNotifier(tr).Notify(context.Background(), &Proposal{JobTitle: "x"})
	require.Error(t, err)
	assert.Empty(t, tr.texts())
}

func TestNotify_QuestionPacing(t *testing.T) {
	tr := &recordingTransport{}
	n := NewNotifier(NotifierConfig{
		Transport:      tr,
		Pacing:         -1,
		LeadIn:         40 * time.Millisecond,
		QuestionPacing: 20 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	p := sample()
	p.ProposalText = "Short."

	rep, err := n.Notify(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Chunks.Delivered)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.sent, 4)
	assert.GreaterOrEqual(t, tr.sent[1].at.Sub(tr.sent[0].at), 40*time.Millisecond)
	assert.GreaterOrEqual(t, tr.sent[2].at.Sub(tr.sent[1].at), 20*time.Millisecond)
	assert.GreaterOrEqual(t, tr.sent[3].at.Sub(tr.sent[2].at), 20*time.Millisecond)
}

func TestNotify_ReportsParts(t *testing.T) {
	tr := &recordingTransport{}
	var parts []Part
	n := NewNotifier(NotifierConfig{
		Transport:      tr,
		Pacing:         -1,
		LeadIn:         -1,
		QuestionPacing: -1,
		OnAttempt:      func(pr Progress) { parts = append(parts, pr.Part) },
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	p := sample()
	p.ProposalText = "Short."

	_, err := n.Notify(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []Part{PartMain, PartQuestions, PartQuestions, PartQuestions}, parts)
}

func TestNotify_ProgressTracksQuestionAcrossChunks(t *testing.T) {
	tr := &recordingTransport{}
	var got []Progress
	n := NewNotifier(NotifierConfig{
		Transport:      tr,
		TargetLength:   40,
		MaxLength:      60,
		Pacing:         -1,
		LeadIn:         -1,
		QuestionPacing: -1,
		OnAttempt:      func(pr Progress) { got = append(got, pr) },
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	p := sample()
	p.ProposalText = "Short."
	p.Questions = []string{strings.Repeat("x", 100), "Timeline?"}

	rep, err := n.Notify(context.Background(), p)
	require.NoError(t, err)

	var questions []Progress
	for _, pr := range got {
		if pr.Part == PartQuestions {
			questions = append(questions, pr)
		}
	}
	require.Len(t, questions, rep.Questions.Total)
	require.Greater(t, len(questions), 3, "the long question should be split")

	last := questions[len(questions)-1]
	assert.Equal(t, 2, last.Message)
	assert.True(t, last.Final)

	var finals []int
	for _, pr := range questions {
		if pr.Final {
			finals = append(finals, pr.Message)
		}
	}
	assert.Equal(t, []int{0, 1, 2}, finals)
}
