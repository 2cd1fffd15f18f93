package proposal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample() *Proposal {
	return &Proposal{
		JobTitle:     "Build <Dashboard> & API",
		JobURL:       "https://upwork.com/jobs/~01?a=1&b=2",
		ProposalText: "I can ship this in a week.\n\nUsing Go & React.",
		Platform:     "upwork",
		Decision:     "STRONG GO",
		Confidence:   85,
		BudgetRange:  "$500-$1,000",
		BidAmount:    750,
		ClientInfo: &ClientInfo{
			Spent:           12345,
			Rating:          4.9,
			Hires:           12,
			PaymentVerified: true,
			Country:         "US",
		},
		PortfolioMatch: "TherapyKin",
		ClientType:     "process-oriented",
		Urgency:        8,
		Pain:           7,
		Questions:      []string{"Is the API <REST> or GraphQL?", "Deadline?"},
	}
}

func TestFormatMain_Full(t *testing.T) {
	msg := FormatMain(sample())

	assert.True(t, strings.HasPrefix(msg, "<b>🎯 STRONG GO • UPWORK • 85% confidence</b>\n\n"))
	assert.Contains(t, msg, "<b>Build &lt;Dashboard&gt; &amp; API</b>\n\n")
	assert.Contains(t, msg, "💰 $500-$1,000 (bid: $750)\n")
	assert.Contains(t, msg, "👤 $12,345 spent • 4.9★ • 12 hires • ✅ verified • US\n")
	assert.Contains(t, msg, "📁 Proof: TherapyKin\n")
	assert.Contains(t, msg, "🎭 Type: process-oriented\n")
	assert.Contains(t, msg, "⚡ Urgency: 8/10\n")
	assert.Contains(t, msg, "😰 Pain: 7/10\n")
	assert.Contains(t, msg, divider+"\n<b>PROPOSAL:</b>\n"+divider+"\n\n")
	assert.Contains(t, msg, "Using Go &amp; React.\n\n")
	assert.True(t, strings.HasSuffix(msg, `<a href="https://upwork.com/jobs/~01?a=1&amp;b=2">🔗 View Job on upwork</a>`))
}

func TestFormatMain_Minimal(t *testing.T) {
	p := &Proposal{
		JobTitle:     "Job",
		JobURL:       "https://x",
		ProposalText: "Text",
		Platform:     "contra",
		Decision:     "PASS",
		Confidence:   40.5,
	}
	msg := FormatMain(p)

	assert.True(t, strings.HasPrefix(msg, "<b>ℹ️ PASS • CONTRA • 40.5% confidence</b>"))
	for _, absent := range []string{"💰", "👤", "📁", "🎭", "⚡", "😰"} {
		assert.NotContains(t, msg, absent)
	}
}

func TestFormatMain_BidWithoutBudget(t *testing.T) {
	p := sample()
	p.BudgetRange = ""
	assert.Contains(t, FormatMain(p), "\n\n (bid: $750)\n")
}

func TestDecisionEmoji(t *testing.T) {
	assert.Equal(t, "🎯", decisionEmoji("STRONG GO"))
	assert.Equal(t, "⚠️", decisionEmoji("QUALIFIED MAYBE"))
	assert.Equal(t, "ℹ️", decisionEmoji("NO GO"))
}

func TestFormatClientInfo(t *testing.T) {
	assert.Empty(t, FormatClientInfo(nil))
	assert.Empty(t, FormatClientInfo(&ClientInfo{}))
	assert.Equal(t, "$1,234.5 spent", FormatClientInfo(&ClientInfo{Spent: 1234.5}))
	assert.Equal(t, "5★ • Côte d&lt;Ivoire&gt;", FormatClientInfo(&ClientInfo{Rating: 5, Country: "Côte d<Ivoire>"}))
}

func TestFormatQuestions(t *testing.T) {
	msgs := FormatQuestions(sample())
	assert.Equal(t, []string{
		"<b>❓ Questions for Client (2):</b>",
		"<b>Q1:</b> Is the API &lt;REST&gt; or GraphQL?",
		"<b>Q2:</b> Deadline?",
	}, msgs)

	assert.Nil(t, FormatQuestions(&Proposal{}))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0", money(0))
	assert.Equal(t, "999", money(999))
	assert.Equal(t, "1,000,000", money(1e6))
	assert.Equal(t, "2,500.25", money(2500.25))
	assert.Equal(t, "1,234.001", money(1234.001))
	assert.Equal(t, "1,234.1", money(1234.10))
	assert.Equal(t, "1,234", money(1234.0004))
}
