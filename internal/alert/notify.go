package alert

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// NotifyCue raises a desktop notification for each level
type NotifyCue struct {
	Title  string
	notify func(title, message string) error
}

// NewNotifyCue creates a desktop notification cue
func NewNotifyCue(title string) *NotifyCue {
	if title == "" {
		title = "VoiceCoach"
	}
	return &NotifyCue{
		Title: title,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (c *NotifyCue) Play(level int) error {
	if level < 1 {
		return nil
	}
	msg := fmt.Sprintf("You have been quiet for a while (level %d)", level)
	if err := c.notify(c.Title, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}
