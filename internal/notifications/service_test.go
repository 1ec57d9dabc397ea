package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courseopt/internal/config"
	"courseopt/internal/notifications"
	"courseopt/internal/report"
	"courseopt/internal/services"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func configFor(topic string, onlyFailures bool) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.OnlyFailures = onlyFailures
	return &cfg
}

func sampleBatch(failed bool) report.Batch {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ok := report.New("MITx_6.00x_2T2024", "run-1", "a.tar.gz", now)
	ok.BytesIn, ok.BytesOut, ok.BytesRemoved = 4_000_000, 1_000_000, 2_000_000
	ok.Succeed(now.Add(time.Second))
	b := report.Batch{ok}
	if failed {
		bad := report.New("broken", "run-2", "broken.tar.gz", now)
		bad.Fail(services.Wrap(services.ErrExtraction, "extract", "open", "bad gzip", errors.New("unexpected EOF")), now)
		b = append(b, bad)
	}
	return b
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor("", false))
	if err := svc.NotifyBatchCompleted(context.Background(), sampleBatch(true), time.Minute); err != nil {
		t.Fatalf("noop notifier returned %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config notifier returned %v", err)
	}
}

func TestBatchCompleted(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL, false))

	if err := svc.NotifyBatchCompleted(context.Background(), sampleBatch(false), 90*time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := svc.NotifyBatchCompleted(context.Background(), sampleBatch(true), 90*time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*got))
	}

	clean := (*got)[0]
	if clean.title != "courseopt - Batch Complete" || clean.priority != "" {
		t.Fatalf("unexpected clean headers: %+v", clean)
	}
	if !strings.Contains(clean.body, "1 course(s) optimized in 1m30s") || !strings.Contains(clean.body, "2.0 MB") {
		t.Fatalf("unexpected clean body: %q", clean.body)
	}

	failed := (*got)[1]
	if failed.priority != "high" || !strings.Contains(failed.body, "1 succeeded, 1 failed") {
		t.Fatalf("unexpected failure notification: %+v", failed)
	}
}

func TestOnlyFailuresSuppressesCleanBatches(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL, true))
	if err := svc.NotifyBatchCompleted(context.Background(), sampleBatch(false), time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("expected no request, got %d", len(*got))
	}
}

func TestCourseFailed(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL, false))
	course := sampleBatch(true)[1]
	if err := svc.NotifyCourseFailed(context.Background(), course); err != nil {
		t.Fatalf("notify: %v", err)
	}
	n := (*got)[0]
	if !strings.Contains(n.body, "broken failed during pending (ExtractionFailure)") {
		t.Fatalf("unexpected body: %q", n.body)
	}
	if n.tags != "courseopt,error,ExtractionFailure" {
		t.Fatalf("unexpected tags: %q", n.tags)
	}
}

func TestServerErrorIsReturned(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError)
	svc := notifications.NewService(configFor(srv.URL, false))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 500") {
		t.Fatalf("expected ntfy error, got %v", err)
	}
}
