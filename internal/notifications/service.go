package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"courseopt/internal/config"
	"courseopt/internal/report"
)

const userAgent = "courseopt/0.1"

// Service is the notification surface used by the CLI.
type Service interface {
	NotifyBatchCompleted(ctx context.Context, batch report.Batch, elapsed time.Duration) error
	NotifyCourseFailed(ctx context.Context, course *report.Course) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		onlyFailures: cfg.Notifications.OnlyFailures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	onlyFailures bool
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, batch report.Batch, elapsed time.Duration) error {
	if len(batch) == 0 {
		return nil
	}
	failed := batch.Failed()
	if failed == 0 && n.onlyFailures {
		return nil
	}

	var removed, in, out int64
	for _, c := range batch {
		removed += c.BytesRemoved
		in += c.BytesIn
		out += c.BytesOut
	}
	elapsed = max(elapsed.Round(time.Second), 0)

	data := payload{
		title: "courseopt - Batch Complete",
		message: fmt.Sprintf("%d course(s) optimized in %s\nRemoved %s of unused assets, %s → %s",
			len(batch)-failed, elapsed, humanize.Bytes(uint64(max(removed, 0))),
			humanize.Bytes(uint64(max(in, 0))), humanize.Bytes(uint64(max(out, 0)))),
		tags: []string{"courseopt", "batch", "completed"},
	}
	if failed > 0 {
		data.title = "courseopt - Batch Complete (with errors)"
		data.message = fmt.Sprintf("%d succeeded, %d failed in %s", len(batch)-failed, failed, elapsed)
		data.tags = []string{"courseopt", "batch", "warning"}
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCourseFailed(ctx context.Context, course *report.Course) error {
	if course == nil {
		return nil
	}
	message := fmt.Sprintf("%s failed during %s (%s)", course.CourseID, course.FailedAt, course.FailureKind)
	if msg := strings.TrimSpace(course.Error); msg != "" {
		message += "\n" + msg
	}
	return n.send(ctx, payload{
		title:    "courseopt - Course Failed",
		message:  message,
		tags:     []string{"courseopt", "error", string(course.FailureKind)},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "courseopt - Test",
		message:  "Notification system test",
		tags:     []string{"courseopt", "test"},
		priority: "low",
	})
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
	if data.priority != "" {
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

type noopService struct{}

func (noopService) NotifyBatchCompleted(context.Context, report.Batch, time.Duration) error {
	return nil
}
func (noopService) NotifyCourseFailed(context.Context, *report.Course) error { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
