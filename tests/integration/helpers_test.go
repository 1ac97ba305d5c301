//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hookrelay/hookrelay/internal/queue"
	"github.com/hookrelay/hookrelay/internal/testutil"
)

// resetState truncates queue data and re-enables processing so tests do not
// leak into each other.
func resetState(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := testDB.Exec(ctx, "TRUNCATE notification_queue, integrations")
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	_, err = testDB.Exec(ctx, "DELETE FROM app_settings")
	if err != nil {
		t.Fatalf("reset settings: %v", err)
	}
}

// seedIntegration inserts an integration row and returns its id.
func seedIntegration(t *testing.T, webhookURL string, enabled bool) string {
	t.Helper()

	var id string
	err := testDB.QueryRow(context.Background(), `
		INSERT INTO integrations (platform, name, webhook_url, enabled)
		VALUES ('mattermost', 'test channel', $1, $2)
		RETURNING id`,
		webhookURL, enabled,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return id
}

// enqueue creates a notification through the API and returns it.
func enqueue(t *testing.T, integrationID, payload string) queue.QueuedNotification {
	t.Helper()

	resp, err := testClient.POST("/api/v1/notifications", map[string]any{
		"integration_id": integrationID,
		"payload":        payload,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var created queue.QueuedNotification
	testutil.DecodeData(t, resp, &created)
	return created
}

// processPass triggers one processing pass through the API.
func processPass(t *testing.T) queue.PassResult {
	t.Helper()

	resp, err := testClient.POST("/api/v1/queue/process", map[string]any{"limit": 50})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var result queue.PassResult
	testutil.DecodeData(t, resp, &result)
	return result
}

// getNotification fetches a notification through the API.
func getNotification(t *testing.T, id string) queue.QueuedNotification {
	t.Helper()

	resp, err := testClient.GET("/api/v1/notifications/" + id)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var n queue.QueuedNotification
	testutil.DecodeData(t, resp, &n)
	return n
}

// setQueueEnabled flips the kill-switch through the API.
func setQueueEnabled(t *testing.T, enabled bool) {
	t.Helper()

	resp, err := testClient.PUT("/api/v1/queue/settings", map[string]any{"enabled": enabled})
	if err != nil {
		t.Fatalf("set queue enabled: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)
}

// waitRetryEligible sleeps past the longest test schedule entry so a record
// scheduled for retry becomes claimable.
func waitRetryEligible() {
	time.Sleep(50 * time.Millisecond)
}
