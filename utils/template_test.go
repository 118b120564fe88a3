package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderReminder(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	d := ReminderData{
		CustomerName: "Ana",
		BranchName:   "Makati",
		Start:        time.Date(2026, 5, 4, 2, 30, 0, 0, time.UTC),
	}

	got := RenderReminder("Hi {customerName}! {branchName} {date} {time}. See you {customerName}.", d, manila)
	assert.Equal(t, "Hi Ana! Makati May 4, 2026 10:30 AM. See you Ana.", got)

	got = RenderReminder(DefaultReminderTemplate, d, nil)
	assert.Equal(t, "Hi Ana, this is a reminder of your appointment at Makati on May 4, 2026 at 2:30 AM.", got)
}
