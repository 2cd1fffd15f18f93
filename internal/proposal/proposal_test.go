package proposal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "p.json", `{
		"job_title": "Fix React app",
		"job_url": "https://upwork.com/jobs/1",
		"proposal_text": "Hello there.",
		"platform": "upwork",
		"decision": "STRONG GO",
		"confidence": 85,
		"bid_amount": 450,
		"client_info": {"spent": 12345, "rating": 4.9, "hires": 12, "payment_verified": true, "country": "US"},
		"questions": ["When can we start?"]
	}`)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Fix React app", p.JobTitle)
	assert.Equal(t, 85.0, p.Confidence)
	assert.Equal(t, 450.0, p.BidAmount)
	require.NotNil(t, p.ClientInfo)
	assert.Equal(t, 12, p.ClientInfo.Hires)
	assert.True(t, p.ClientInfo.PaymentVerified)
	assert.Equal(t, []string{"When can we start?"}, p.Questions)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "p.yaml", `
job_title: Landing page
job_url: https://contra.com/job/2
proposal_text: |
  First paragraph.

  Second paragraph.
platform: contra
decision: QUALIFIED MAYBE
confidence: 60
client_info:
  country: Germany
`)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "contra", p.Platform)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.\n", p.ProposalText)
	assert.Equal(t, "Germany", p.ClientInfo.Country)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", "{"))
	assert.ErrorContains(t, err, "cannot parse")

	_, err = Load(writeFile(t, "partial.json", `{"job_title": "x"}`))
	assert.ErrorContains(t, err, `"job_url"`)
}

func TestValidate_RequiredFields(t *testing.T) {
	valid := func() *Proposal {
		return &Proposal{
			JobTitle:     "t",
			JobURL:       "https://x",
			ProposalText: "p",
			Platform:     "upwork",
			Decision:     "STRONG GO",
			Confidence:   90,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		field  string
		mutate func(p *Proposal)
	}{
		{"job_title", func(p *Proposal) { p.JobTitle = "" }},
		{"job_url", func(p *Proposal) { p.JobURL = " " }},
		{"proposal_text", func(p *Proposal) { p.ProposalText = "" }},
		{"platform", func(p *Proposal) { p.Platform = "" }},
		{"decision", func(p *Proposal) { p.Decision = "" }},
		{"confidence", func(p *Proposal) { p.Confidence = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
