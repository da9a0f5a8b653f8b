package check

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultSubject is used when no notification subject is configured.
const DefaultSubject = "pagewatch alert"

// BuildNotification renders the message sent when a monitor's condition is met.
func BuildNotification(
	subject string,
	m watch.Monitor,
	oldValue, newValue *string,
	confidence float64,
	evidenceURI string,
	at time.Time,
) watch.Notification {
	if subject == "" {
		subject = DefaultSubject
	}
	var b strings.Builder
	b.WriteString("Hello,\n")
	b.WriteString("One of your monitors matched its condition. Details below:\n\n")
	fmt.Fprintf(&b, "Monitor Description: %s\n", m.Description)
	fmt.Fprintf(&b, "Condition: %s\n", m.Condition)
	fmt.Fprintf(&b, "URL: %s\n", m.URL)
	fmt.Fprintf(&b, "Previous Value: %s\n", display(oldValue))
	fmt.Fprintf(&b, "New Value: %s\n", display(newValue))
	fmt.Fprintf(&b, "Confidence: %.2f\n", confidence)
	fmt.Fprintf(&b, "Monitor ID: %s\n", m.ID)
	if evidenceURI != "" {
		fmt.Fprintf(&b, "Evidence: %s\n", evidenceURI)
	}

	return watch.Notification{
		Subject:     subject,
		Body:        b.String(),
		MonitorID:   m.ID,
		URL:         m.URL,
		Description: m.Description,
		OldValue:    oldValue,
		NewValue:    newValue,
		Confidence:  confidence,
		EvidenceURI: evidenceURI,
		SentAt:      at.UTC(),
	}
}

func display(v *string) string {
	if v == nil || *v == "" {
		return "(none)"
	}
	return *v
}
