package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Embed colours, as decimal RGB.
const (
	colourBlue    = 0x3498DB
	colourGreen   = 0x57F287
	colourYellow  = 0xFEE75C
	colourRed     = 0xED4245
	colourDarkRed = 0x992D22
)

type DiscordMsg struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts to a Discord incoming webhook.
type Discord struct {
	HookURL string
}

func discordColour(s Severity) int {
	switch s {
	case Success:
		return colourGreen
	case Warning:
		return colourYellow
	case Error:
		return colourRed
	case Critical:
		return colourDarkRed
	default:
		return colourBlue
	}
}

func (d Discord) Notify(ctx context.Context, n Notification) error {
	msg := DiscordMsg{
		Embeds: []DiscordEmbed{{
			Title:       n.Title,
			Description: n.Message,
			Color:       discordColour(n.Severity),
		}},
	}
	if n.Severity == Critical {
		msg.Content = "@here"
	}
	return postJSON(ctx, "Discord", d.HookURL, msg)
}

func postJSON(ctx context.Context, service, url string, msg interface{}) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return errors.Wrapf(err, "encoding %s POST request", service)
	}

	req, err := http.NewRequest("POST", url, buf)
	if err != nil {
		return errors.Wrapf(err, "constructing %s HTTP request", service)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		// the URL is a credential; don't let it into logs
		if uerr, ok := err.(interface{ Unwrap() error }); ok && uerr.Unwrap() != nil {
			err = uerr.Unwrap()
		}
		return errors.Wrapf(err, "executing HTTP POST to %s", service)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		return fmt.Errorf("%s from %s (%s)", resp.Status, service, strings.TrimSpace(string(body)))
	}
	return nil
}
