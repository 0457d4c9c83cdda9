package services

import (
	"care-alert/internal/models"
)

// bodyBudget is the notification display budget in characters.
const bodyBudget = 150

// recommendationSeparator joins the alert message and its actionable
// recommendation. The recommendation is only ever appended whole, so
// truncation can never land inside the separator.
const recommendationSeparator = "\n\n"

var severityGlyphs = map[models.Severity]string{
	models.SeverityCritical: "🚨",
	models.SeverityHigh:     "⚠️",
	models.SeverityMedium:   "🔔",
	models.SeverityLow:      "📋",
	models.SeverityInfo:     "ℹ️",
}

// FormatAlert renders an alert into a notification title and body. The title
// carries a severity glyph; the body is the message plus, when it fits the
// budget, the actionable recommendation. A recommendation that would overflow
// is dropped whole rather than shown partially.
func FormatAlert(alert *models.Alert) (title, body string) {
	glyph, ok := severityGlyphs[alert.Severity]
	if !ok {
		glyph = severityGlyphs[models.SeverityInfo]
	}
	title = glyph + " " + alert.Title

	body = alert.Message
	if alert.Recommendation != "" {
		joined := alert.Message + recommendationSeparator + alert.Recommendation
		if runeLen(joined) <= bodyBudget {
			body = joined
		}
	}
	return title, truncateBody(body)
}

// EscalatedTitle marks a re-dispatch title so escalated sends are
// distinguishable on the receiving device.
func EscalatedTitle(title string) string {
	return "ESCALATED: " + title
}

func truncateBody(s string) string {
	runes := []rune(s)
	if len(runes) <= bodyBudget {
		return s
	}
	return string(runes[:bodyBudget-1]) + "…"
}

func runeLen(s string) int {
	return len([]rune(s))
}
