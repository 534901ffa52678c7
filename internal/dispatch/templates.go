// internal/dispatch/templates.go
package dispatch

import (
	"fmt"
	"strings"

	"promise-dispatch/internal/common/errors"
	"promise-dispatch/internal/digest"
	"promise-dispatch/internal/models"
)

// In-code template registry keyed by email type. Placeholders use the
// {{key}} form; unknown placeholders render empty.
var emailTemplates = map[string]map[string]string{
	models.EmailTypeDailyBrief: {
		"subject": "Your promises due today",
		"body": "<p>Hi {{recipientName}},</p>" +
			"<p>The following promises are due today or overdue:</p>" +
			"{{promiseList}}" +
			"<p>Close them out before end of day.</p>",
	},
	models.EmailTypeWeeklyReminder: {
		"subject": "Your promise summary",
		"body": "<p>Hi {{recipientName}},</p>" +
			"<p>Open: {{openCount}} &middot; Pending verification: {{pendingCount}} &middot; " +
			"Missed: {{missedCount}} &middot; Overdue: {{overdueCount}}</p>" +
			"{{integrityLine}}" +
			"<p>Coming up this week:</p>" +
			"{{promiseList}}",
	},
	models.EmailTypeLeaderDailyRadar: {
		"subject": "Team promises due today",
		"body": "<p>Hi {{recipientName}},</p>" +
			"<p>Promises on your team due today or overdue:</p>" +
			"{{promiseList}}",
	},
	models.EmailTypeLeaderWeeklyReport: {
		"subject": "Team promise report",
		"body": "<p>Hi {{recipientName}},</p>" +
			"<p>Your team's active promises through week's end:</p>" +
			"{{promiseList}}",
	},
}

// renderTemplate substitutes {{key}} placeholders and strips any left over
// so missing values render empty rather than leaking braces.
func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}

// renderEmail produces the subject and HTML body for one email type.
func renderEmail(emailType string, data map[string]string) (subject, body string, err error) {
	tmpl, ok := emailTemplates[emailType]
	if !ok {
		return "", "", errors.NewTemplateNotFoundError(emailType)
	}
	return renderTemplate(tmpl["subject"], data), renderTemplate(tmpl["body"], data), nil
}

// formatItems renders digest items as an HTML list.
func formatItems(items []digest.Item) string {
	if len(items) == 0 {
		return "<p>Nothing due.</p>"
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, it := range items {
		fmt.Fprintf(&b, "<li>%s &mdash; due %s %s</li>",
			it.PromiseText, it.DueDate.Format("Jan 2"), it.DueDisplay)
	}
	b.WriteString("</ul>")
	return b.String()
}

// formatUpcoming renders the weekly upcoming list.
func formatUpcoming(promises []models.Promise) string {
	if len(promises) == 0 {
		return "<p>Nothing scheduled this week.</p>"
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, p := range promises {
		fmt.Fprintf(&b, "<li>%s &mdash; due %s</li>", p.PromiseText, p.DueDate.Format("Jan 2"))
	}
	b.WriteString("</ul>")
	return b.String()
}
