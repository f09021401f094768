package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
)

type Severity string

const (
	Info     Severity = "info"
	Success  Severity = "success"
	Warning  Severity = "warning"
	Error    Severity = "error"
	Critical Severity = "critical" // manual intervention required
)

type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Multi sends to every notifier, carrying on past failures and
// returning the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BestEffort logs and swallows errors from the notifier it wraps;
// delivery failures must not interrupt a deployment.
type BestEffort struct {
	Notifier Notifier
	Logger   log.Logger
}

func (b BestEffort) Notify(ctx context.Context, n Notification) error {
	if b.Notifier == nil {
		return nil
	}
	if err := b.Notifier.Notify(ctx, n); err != nil {
		b.Logger.Log("warning", "failed to send notification", "title", n.Title, "err", err)
	}
	return nil
}

// Logger records notifications in the log, so there's a trail even
// when no external channel is configured.
type Logger struct {
	Logger log.Logger
}

func (l Logger) Notify(_ context.Context, n Notification) error {
	return l.Logger.Log("notification", n.Title, "severity", n.Severity, "msg", n.Message)
}
