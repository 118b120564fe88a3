package utils

import (
	"strings"
	"time"
)

// DefaultReminderTemplate is used when a business has no enabled reminder rule.
const DefaultReminderTemplate = "Hi {customerName}, this is a reminder of your appointment at {branchName} on {date} at {time}."

// ReminderData fills the placeholders of a reminder template.
type ReminderData struct {
	CustomerName string
	BranchName   string
	Start        time.Time
}

// RenderReminder substitutes {customerName}, {branchName}, {date} and {time}.
// Date and time are rendered in loc.
func RenderReminder(tmpl string, d ReminderData, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := d.Start.In(loc)
	r := strings.NewReplacer(
		"{customerName}", d.CustomerName,
		"{branchName}", d.BranchName,
		"{date}", start.Format("Jan 2, 2006"),
		"{time}", start.Format("3:04 PM"),
	)
	return r.Replace(tmpl)
}
