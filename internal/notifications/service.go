package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medintake/internal/config"
)

const userAgent = "Medintake-Go/0.1.0"

// Service defines the notification surface exposed to the pipeline and
// review components.
type Service interface {
	NotifySessionCompleted(ctx context.Context, sessionID string, processed, failed int, duration time.Duration) error
	NotifyReviewRequired(ctx context.Context, sessionID string, count int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		sessions: cfg.Notifications.Sessions,
		review:   cfg.Notifications.Review,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	sessions bool
	review   bool
	errors   bool
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, sessionID string, processed, failed int, duration time.Duration) error {
	if !n.sessions {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Medintake - Session Complete"
		message = fmt.Sprintf("✅ Session %s complete: %d files processed in %s", shortID(sessionID), processed, durationText)
	} else {
		title = "Medintake - Session Complete (with errors)"
		message = fmt.Sprintf("Session %s complete: %d succeeded, %d failed in %s", shortID(sessionID), processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"medintake", "session", "completed"},
	}
	if failed > 0 {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewRequired(ctx context.Context, sessionID string, count int) error {
	if !n.review || count <= 0 {
		return nil
	}
	noun := "files"
	if count == 1 {
		noun = "file"
	}
	data := payload{
		title:   "Medintake - Review Required",
		message: fmt.Sprintf("📋 Session %s: %d %s waiting for review", shortID(sessionID), count, noun),
		tags:    []string{"medintake", "review", "flagged"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Medintake - Error",
		message:  builder.String(),
		tags:     []string{"medintake", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Medintake - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"medintake", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// shortID trims session UUIDs to their first block for message brevity.
func shortID(id string) string {
	id = strings.TrimSpace(id)
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifySessionCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyReviewRequired(context.Context, string, int) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
