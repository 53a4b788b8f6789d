//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newCourt returns a court id no other test uses.
func newCourt() string {
	return "court-" + uuid.NewString()[:8]
}

type itemResponse struct {
	Data domain.QueueItem `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// createItem posts a new item of queueType and returns it.
func createItem(t *testing.T, client *testutil.Client, queueType string, opts ...itemOption) domain.QueueItem {
	t.Helper()

	payload := map[string]interface{}{
		"queue_type":  queueType,
		"title":       "Review " + queueType,
		"source_type": sourceTypeFor(queueType),
		"source_id":   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/v1/queue", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create %s", queueType)

	var result itemResponse
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

type itemOption func(map[string]interface{})

func withPriority(p int) itemOption {
	return func(m map[string]interface{}) { m["priority"] = p }
}

func withSourceID(id string) itemOption {
	return func(m map[string]interface{}) { m["source_id"] = id }
}

func sourceTypeFor(queueType string) string {
	switch queueType {
	case "filing", "motion", "order":
		return queueType
	case "deadline_alert":
		return "deadline"
	default:
		return "document"
	}
}

// action posts to /queue/{id}/{name} and decodes the item on 200.
func action(t *testing.T, client *testutil.Client, id, name string, body interface{}) (int, domain.QueueItem) {
	t.Helper()

	resp, err := client.POST("/api/v1/queue/"+id+"/"+name, body)
	require.NoError(t, err)

	var result itemResponse
	if resp.StatusCode == http.StatusOK {
		testutil.DecodeJSON(t, resp, &result)
	} else {
		_ = resp.Body.Close()
	}
	return resp.StatusCode, result.Data
}

func expectError(t *testing.T, client *testutil.Client, path string, body interface{}, status int, code string) {
	t.Helper()

	resp, err := client.POST(path, body)
	require.NoError(t, err)
	require.Equal(t, status, resp.StatusCode)

	var result errorResponse
	testutil.DecodeJSON(t, resp, &result)
	require.Equal(t, code, result.Error.Code)
}
