package queue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTexts(t *testing.T) {
	msg := confirmationMessage(7, "5:10 PM", "5:30 PM")
	assert.Contains(t, msg, "#7")
	assert.Contains(t, msg, "5:10 PM")
	assert.Contains(t, msg, "5:30 PM")

	msg = reslottedMessage(3, "6:00 PM", "6:20 PM")
	assert.Contains(t, msg, "#3")
	assert.Contains(t, msg, "moved")

	msg = delayMessage(45)
	assert.Contains(t, msg, "45 minutes")

	assert.True(t, strings.Contains(sessionCancelledMessage(), "cancelled"))
	assert.Contains(t, completedMessage(), "complete")
}
