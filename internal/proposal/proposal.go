// Package proposal formats job-proposal notifications and sends them through
// the dispatcher.
package proposal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Proposal is one drafted reply to a job posting.
type Proposal struct {
	JobTitle       string      `json:"job_title" yaml:"job_title"`
	JobURL         string      `json:"job_url" yaml:"job_url"`
	ProposalText   string      `json:"proposal_text" yaml:"proposal_text"`
	Platform       string      `json:"platform" yaml:"platform"`
	Decision       string      `json:"decision" yaml:"decision"`
	Confidence     float64     `json:"confidence" yaml:"confidence"`
	BudgetRange    string      `json:"budget_range,omitempty" yaml:"budget_range,omitempty"`
	BidAmount      float64     `json:"bid_amount,omitempty" yaml:"bid_amount,omitempty"`
	ClientInfo     *ClientInfo `json:"client_info,omitempty" yaml:"client_info,omitempty"`
	PortfolioMatch string      `json:"portfolio_match,omitempty" yaml:"portfolio_match,omitempty"`
	ClientType     string      `json:"client_type,omitempty" yaml:"client_type,omitempty"`
	Urgency        float64     `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	Pain           float64     `json:"pain,omitempty" yaml:"pain,omitempty"`
	Questions      []string    `json:"questions,omitempty" yaml:"questions,omitempty"`
}

type ClientInfo struct {
	Spent           float64 `json:"spent,omitempty" yaml:"spent,omitempty"`
	Rating          float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	Hires           int     `json:"hires,omitempty" yaml:"hires,omitempty"`
	PaymentVerified bool    `json:"payment_verified,omitempty" yaml:"payment_verified,omitempty"`
	Country         string  `json:"country,omitempty" yaml:"country,omitempty"`
}

// Load reads a proposal from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read proposal file %s: %w", path, err)
	}

	var p Proposal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse proposal file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate reports the first missing required field.
func (p *Proposal) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"job_title", p.JobTitle},
		{"job_url", p.JobURL},
		{"proposal_text", p.ProposalText},
		{"platform", p.Platform},
		{"decision", p.Decision},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("missing required field %q in proposal", f.name)
		}
	}
	if p.Confidence <= 0 {
		return fmt.Errorf("missing required field %q in proposal", "confidence")
	}
	return nil
}
