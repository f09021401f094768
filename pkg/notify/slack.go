package notify

import (
	"context"
)

type SlackMsg struct {
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Fallback string   `json:"fallback,omitempty"`
	Text     string   `json:"text"`
	Color    string   `json:"color,omitempty"`
	Markdown []string `json:"mrkdwn_in,omitempty"`
}

// Slack posts to a Slack incoming webhook.
type Slack struct {
	HookURL  string
	Username string
}

func slackColour(s Severity) string {
	switch s {
	case Success:
		return "good"
	case Warning:
		return "warning"
	case Error, Critical:
		return "danger"
	default:
		return ""
	}
}

func (s Slack) Notify(ctx context.Context, n Notification) error {
	text := "*" + n.Title + "*"
	if n.Severity == Critical {
		text = "<!here> " + text
	}
	return postJSON(ctx, "Slack", s.HookURL, SlackMsg{
		Username: s.Username,
		Text:     text,
		Attachments: []SlackAttachment{{
			Fallback: n.Message,
			Text:     n.Message,
			Color:    slackColour(n.Severity),
		}},
	})
}
