package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jortega-dev/warelay/internal/logging"
)

// fakeAssistantAPI is a minimal in-memory Assistants API. The run status
// sequence controls how many polls a run takes to settle.
type fakeAssistantAPI struct {
	mu          sync.Mutex
	statuses    []string
	statusIdx   int
	replyText   string
	threads     int
	messages    []string
	cancelCalls int
}

func (f *fakeAssistantAPI) handler() http.Handler {
	// Routes are dispatched by hand on method and path segments because
	// the Go 1.21 ServeMux has no method or wildcard patterns.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "threads":
			f.mu.Lock()
			f.threads++
			id := fmt.Sprintf("thread_%d", f.threads)
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})

		case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.messages = append(f.messages, body["content"])
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})

		case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "threads" && parts[2] == "runs":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})

		case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "threads" && parts[2] == "runs":
			f.mu.Lock()
			status := f.statuses[len(f.statuses)-1]
			if f.statusIdx < len(f.statuses) {
				status = f.statuses[f.statusIdx]
				f.statusIdx++
			}
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": status})

		case r.Method == http.MethodPost && len(parts) == 5 && parts[0] == "threads" && parts[2] == "runs" && parts[4] == "cancel":
			f.mu.Lock()
			f.cancelCalls++
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "cancelling"})

		case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "threads" && parts[2] == "messages":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"role": "assistant",
						"content": []map[string]any{
							{"type": "text", "text": map[string]string{"value": f.replyText}},
						},
					},
				},
			})

		default:
			http.NotFound(w, r)
		}
	})
}

func newTestClient(t *testing.T, api *fakeAssistantAPI, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	threads := NewThreadMap(filepath.Join(t.TempDir(), "threads.json"), logging.Nop())
	return NewClient(Config{
		APIKey:       "sk-test",
		AssistantID:  "asst_test",
		BaseURL:      srv.URL,
		Timeout:      timeout,
		PollInterval: 5 * time.Millisecond,
	}, threads, logging.Nop())
}

func TestReplyCompletes(t *testing.T) {
	api := &fakeAssistantAPI{
		statuses:  []string{"queued", "in_progress", "completed"},
		replyText: "Claro, te ayudo con eso.",
	}
	client := newTestClient(t, api, 5*time.Second)

	out := client.Reply(context.Background(), "u1", "Ana", "necesito ayuda")
	require.True(t, out.Completed())
	assert.Equal(t, "Claro, te ayudo con eso.", out.Text)

	// The display name is prefixed onto the thread message.
	require.Len(t, api.messages, 1)
	assert.Equal(t, "The user's name is Ana. necesito ayuda", api.messages[0])
}

func TestReplyWithoutName(t *testing.T) {
	api := &fakeAssistantAPI{statuses: []string{"completed"}, replyText: "ok"}
	client := newTestClient(t, api, 5*time.Second)

	out := client.Reply(context.Background(), "u1", "", "hola")
	require.True(t, out.Completed())
	require.Len(t, api.messages, 1)
	assert.Equal(t, "hola", api.messages[0])
}

func TestReplyReusesThread(t *testing.T) {
	api := &fakeAssistantAPI{statuses: []string{"completed"}, replyText: "ok"}
	client := newTestClient(t, api, 5*time.Second)

	client.Reply(context.Background(), "u1", "", "primero")
	api.mu.Lock()
	api.statusIdx = 0
	api.mu.Unlock()
	client.Reply(context.Background(), "u1", "", "segundo")

	assert.Equal(t, 1, api.threads)
	assert.Equal(t, "thread_1", client.threads.Get("u1"))
}

func TestReplyRunFailed(t *testing.T) {
	api := &fakeAssistantAPI{statuses: []string{"in_progress", "failed"}}
	client := newTestClient(t, api, 5*time.Second)

	out := client.Reply(context.Background(), "u1", "", "hola")
	assert.Equal(t, StatusFailed, out.Status)
	assert.False(t, out.Completed())
	assert.Contains(t, out.Reason, "failed")
}

func TestReplyTimesOut(t *testing.T) {
	api := &fakeAssistantAPI{statuses: []string{"in_progress"}}
	client := newTestClient(t, api, 30*time.Millisecond)

	out := client.Reply(context.Background(), "u1", "", "hola")
	assert.Equal(t, StatusTimedOut, out.Status)

	// The stuck run is cancelled best-effort.
	api.mu.Lock()
	cancels := api.cancelCalls
	api.mu.Unlock()
	assert.Equal(t, 1, cancels)
}

func TestReplyContextCancelled(t *testing.T) {
	api := &fakeAssistantAPI{statuses: []string{"in_progress"}}
	client := newTestClient(t, api, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := client.Reply(ctx, "u1", "", "hola")
	assert.Equal(t, StatusFailed, out.Status)
}

func TestOutcomeCompleted(t *testing.T) {
	assert.True(t, Outcome{Status: StatusCompleted}.Completed())
	assert.False(t, Outcome{Status: StatusFailed}.Completed())
	assert.False(t, Outcome{Status: StatusTimedOut}.Completed())
}
