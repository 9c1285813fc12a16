package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier posts transition events as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier. A zero timeout falls back
// to five seconds.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// NotifyTransition posts the event.
func (n *WebhookNotifier) NotifyTransition(ctx context.Context, event TransitionEvent) error {
	requestBody, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.EventID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver transition event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected transition event: status code %d", resp.StatusCode)
	}
	return nil
}

func transitionSubject(workflowName string) string {
	return "Workflow Transition: " + workflowName
}

func transitionBody(e TransitionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow Stage Transition\n\n")
	fmt.Fprintf(&b, "Workflow: %s\n", e.WorkflowName)
	fmt.Fprintf(&b, "Project: %s\n", e.ProjectName)
	fmt.Fprintf(&b, "From Stage: %s\n", e.FromStage)
	fmt.Fprintf(&b, "To Stage: %s\n", e.ToStage)
	if e.TriggeredByName != "" {
		fmt.Fprintf(&b, "Triggered By: %s\n", e.TriggeredByName)
	}
	if e.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", e.Notes)
	}
	fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format("2006-01-02 15:04"))
	return b.String()
}
