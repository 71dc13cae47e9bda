// Package ntfy implements the Notifier port against an ntfy push relay.
package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

// DefaultServerURL is the public ntfy relay.
const DefaultServerURL = "https://ntfy.sh/"

// Notifier publishes messages to an ntfy topic. An empty topic turns every
// Notify call into a silent no-op, so an unconfigured sink costs nothing.
type Notifier struct {
	serverURL string
	topic     string
	portalURL string
	http      *http.Client
}

// NewNotifier creates a Notifier. portalURL, when set, is attached to each
// message as a view action so the push notification deep-links the portal.
func NewNotifier(serverURL, topic, portalURL string) *Notifier {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Notifier{
		serverURL: serverURL,
		topic:     topic,
		portalURL: portalURL,
		http:      &http.Client{},
	}
}

type action struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
	Clear  bool   `json:"clear"`
}

type message struct {
	Topic    string   `json:"topic"`
	Message  string   `json:"message"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	Priority int      `json:"priority"`
	Actions  []action `json:"actions,omitempty"`
}

// Notify publishes the message. Delivery is fire-and-forget: failures are
// logged and never surfaced to the caller.
func (n *Notifier) Notify(ctx context.Context, msg string) {
	if n.topic == "" {
		return
	}

	payload := message{
		Topic:    n.topic,
		Message:  msg,
		Title:    "Vaccination appointment",
		Tags:     []string{"syringe"},
		Priority: 4,
	}
	if n.portalURL != "" {
		payload.Actions = []action{{
			Action: "view",
			Label:  "Vaccination portal",
			URL:    n.portalURL,
			Clear:  true,
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.serverURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		slog.Error("send notification", "error", err)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		slog.Error("notification rejected", "status", resp.StatusCode, "topic", n.topic)
		return
	}

	slog.Debug("notification sent", "topic", n.topic, "bytes", len(body))
}
