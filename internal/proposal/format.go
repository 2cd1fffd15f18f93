package proposal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"scopelock/internal/dispatch"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var divider = strings.Repeat("━", 20)

var printer = message.NewPrinter(language.English)

// hrefEscaper also escapes quotes, which would otherwise end the attribute.
var hrefEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func decisionEmoji(decision string) string {
	switch decision {
	case "STRONG GO":
		return "🎯"
	case "QUALIFIED MAYBE":
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// FormatMain renders the proposal notification in Telegram HTML.
func FormatMain(p *Proposal) string {
	esc := dispatch.EscapeHTML
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>%s %s • %s • %s%% confidence</b>\n\n",
		decisionEmoji(p.Decision), esc(p.Decision), esc(strings.ToUpper(p.Platform)), num(p.Confidence))
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", esc(p.JobTitle))

	if p.BudgetRange != "" {
		sb.WriteString("💰 " + esc(p.BudgetRange))
	}
	if p.BidAmount != 0 {
		sb.WriteString(" (bid: $" + num(p.BidAmount) + ")")
	}
	if p.BudgetRange != "" || p.BidAmount != 0 {
		sb.WriteString("\n")
	}

	if info := FormatClientInfo(p.ClientInfo); info != "" {
		sb.WriteString("👤 " + info + "\n")
	}
	if p.PortfolioMatch != "" {
		sb.WriteString("📁 Proof: " + esc(p.PortfolioMatch) + "\n")
	}
	if p.ClientType != "" {
		sb.WriteString("🎭 Type: " + esc(p.ClientType) + "\n")
	}
	if p.Urgency != 0 {
		sb.WriteString("⚡ Urgency: " + num(p.Urgency) + "/10\n")
	}
	if p.Pain != 0 {
		sb.WriteString("😰 Pain: " + num(p.Pain) + "/10\n")
	}

	sb.WriteString("\n" + divider + "\n<b>PROPOSAL:</b>\n" + divider + "\n\n")
	sb.WriteString(esc(p.ProposalText) + "\n\n")
	fmt.Fprintf(&sb, `<a href="%s">🔗 View Job on %s</a>`, hrefEscaper.Replace(p.JobURL), esc(p.Platform))

	return sb.String()
}

// FormatClientInfo joins the known client facts with bullets.
func FormatClientInfo(c *ClientInfo) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Spent != 0 {
		parts = append(parts, "$"+money(c.Spent)+" spent")
	}
	if c.Rating != 0 {
		parts = append(parts, num(c.Rating)+"★")
	}
	if c.Hires != 0 {
		parts = append(parts, strconv.Itoa(c.Hires)+" hires")
	}
	if c.PaymentVerified {
		parts = append(parts, "✅ verified")
	}
	if c.Country != "" {
		parts = append(parts, dispatch.EscapeHTML(c.Country))
	}
	return strings.Join(parts, " • ")
}

// QuestionsHeader introduces the per-question messages.
func QuestionsHeader(n int) string {
	return fmt.Sprintf("<b>❓ Questions for Client (%d):</b>", n)
}

// FormatQuestions returns the header followed by one message per question.
func FormatQuestions(p *Proposal) []string {
	if len(p.Questions) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Questions)+1)
	out = append(out, QuestionsHeader(len(p.Questions)))
	for i, q := range p.Questions {
		out = append(out, fmt.Sprintf("<b>Q%d:</b> %s", i+1, dispatch.EscapeHTML(q)))
	}
	return out
}

// num prints a number the shortest way: 85, 4.9, 7.5.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// money groups thousands and keeps up to three decimals:
// 12345 -> 12,345; 1234.5 -> 1,234.5; 1234.001 -> 1,234.001.
func money(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("%d", int64(v))
	}
	s := printer.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
