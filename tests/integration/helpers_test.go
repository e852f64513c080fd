//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Carine01/agenda-courier/internal/testutil"
	"github.com/stretchr/testify/require"
)

type queueItem struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Destination  string            `json:"destination"`
	TemplateKey  string            `json:"template_key"`
	ResolvedText string            `json:"resolved_text"`
	Metadata     map[string]string `json:"metadata"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	LastError    string            `json:"last_error"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at"`
}

type blockedInterval struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Date        time.Time  `json:"date"`
	Recurring   bool       `json:"recurring"`
	UntilDate   *time.Time `json:"until_date"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	Type        string     `json:"type"`
	Reason      string     `json:"reason"`
}

type conflictResult struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason"`
	Type    string `json:"type"`
}

type itemEnvelope struct {
	Data queueItem `json:"data"`
}

type itemListEnvelope struct {
	Data []queueItem `json:"data"`
}

type blockEnvelope struct {
	Data blockedInterval `json:"data"`
}

type blockListEnvelope struct {
	Data []blockedInterval `json:"data"`
}

type conflictEnvelope struct {
	Data conflictResult `json:"data"`
}

type slotsEnvelope struct {
	Data []int `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

// enqueue posts a message and requires a 201, returning the created item.
func enqueue(t *testing.T, client *testutil.Client, body map[string]interface{}) queueItem {
	t.Helper()

	resp, err := client.POST("/api/v1/queue", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env itemEnvelope
	testutil.DecodeJSON(t, resp, &env)
	require.NotEmpty(t, env.Data.ID)
	return env.Data
}

// getItem fetches one queue item for a tenant.
func getItem(t *testing.T, client *testutil.Client, tenantID, id string) queueItem {
	t.Helper()

	resp, err := client.GET(fmt.Sprintf("/api/v1/queue/%s?tenant_id=%s", id, tenantID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env itemEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

// waitForStatus polls until the item reaches the given status. Dispatch
// runs on the scheduler tick, so a short wait is expected.
func waitForStatus(t *testing.T, client *testutil.Client, tenantID, id, status string) queueItem {
	t.Helper()

	var item queueItem
	require.Eventually(t, func() bool {
		item = getItem(t, client, tenantID, id)
		return item.Status == status
	}, 15*time.Second, 100*time.Millisecond, "item %s never reached status %s (last: %s, error: %s)", id, status, item.Status, item.LastError)
	return item
}
