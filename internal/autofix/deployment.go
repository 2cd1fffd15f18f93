package autofix

import (
	"fmt"
	"strings"
)

// Deployment is the subset of a Vercel deployment webhook that matters here.
type Deployment struct {
	DeploymentID string         `json:"deployment_id"`
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	URL          string         `json:"url"`
	State        string         `json:"state"`
	Type         string         `json:"type"`
	Target       string         `json:"target"`
	Meta         DeploymentMeta `json:"meta"`
}

type DeploymentMeta struct {
	CommitMessage string `json:"githubCommitMessage"`
	CommitSHA     string `json:"githubCommitSha"`
}

// Key prefers deployment_id over id.
func (d Deployment) Key() string {
	if d.DeploymentID != "" {
		return d.DeploymentID
	}
	return d.ID
}

// IsProductionFailure reports whether the event is a failed production build.
func (d Deployment) IsProductionFailure() bool {
	return d.State == "ERROR" && d.Target == "production"
}

// ShortSHA is the first seven characters of the commit, or a placeholder.
func (d Deployment) ShortSHA() string {
	sha := d.Meta.CommitSHA
	if sha == "" {
		return "unknown"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// CommitTitle is the first line of the commit message, or a placeholder.
func (d Deployment) CommitTitle() string {
	msg := d.Meta.CommitMessage
	if msg == "" {
		return "Unknown commit"
	}
	title, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSpace(title)
}

// InspectorURL links to the deployment in the Vercel dashboard.
func InspectorURL(team string, d Deployment) string {
	return fmt.Sprintf("https://vercel.com/%s/%s/%s", team, d.Name, d.Key())
}

// BuildPrompt is the instruction handed to the fixing agent.
func BuildPrompt(team string, d Deployment) string {
	var sb strings.Builder
	sb.WriteString("Vercel deployment FAILED - Auto-fix requested\n\n")
	fmt.Fprintf(&sb, "Project: %s\n", d.Name)
	fmt.Fprintf(&sb, "Deployment ID: %s\n", d.Key())
	fmt.Fprintf(&sb, "URL: %s\n", d.URL)
	fmt.Fprintf(&sb, "Commit: %s - %s\n", d.ShortSHA(), d.CommitTitle())
	fmt.Fprintf(&sb, "Inspector: %s\n\n", InspectorURL(team, d))
	sb.WriteString(`TASK: Fix this deployment failure autonomously

1. Use the Vercel MCP to get deployment build logs
2. Diagnose the root cause of the error
3. Fix the issue in the codebase
4. Push the fix to main branch
5. Update SYNC.md with fix details

Work autonomously. No human intervention needed.

Use these MCP tools:
- mcp__vercel__get_deployment_build_logs
- mcp__vercel__get_deployment

Start by fetching the build logs to see what failed.
`)
	return sb.String()
}
