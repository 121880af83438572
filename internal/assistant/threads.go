package assistant

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/jortega-dev/warelay/internal/logging"
)

// ThreadMap persists the user → conversation-thread mapping as a small
// JSON file so threads survive process restarts.
type ThreadMap struct {
	mu      sync.Mutex
	path    string
	threads map[string]string
	log     *logging.Logger
}

// NewThreadMap loads the mapping from path, tolerating a missing or
// malformed file.
func NewThreadMap(path string, log *logging.Logger) *ThreadMap {
	tm := &ThreadMap{
		path:    path,
		threads: make(map[string]string),
		log:     log.Sub("threads"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			tm.log.Error().Err(err).Str("path", path).Msg("failed to read threads file")
		}
		return tm
	}
	if err := json.Unmarshal(data, &tm.threads); err != nil {
		tm.log.Error().Err(err).Str("path", path).Msg("failed to parse threads file")
		tm.threads = make(map[string]string)
	}
	return tm
}

// Get returns the thread ID for a user, or empty string.
func (tm *ThreadMap) Get(userID string) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.threads[userID]
}

// Put records a thread ID for a user and writes the file. Write failures
// are logged only; the in-memory mapping stays usable.
func (tm *ThreadMap) Put(userID, threadID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.threads[userID] = threadID

	data, err := json.Marshal(tm.threads)
	if err != nil {
		tm.log.Error().Err(err).Msg("failed to serialize threads")
		return
	}
	if err := os.WriteFile(tm.path, data, 0o600); err != nil {
		tm.log.Error().Err(err).Str("path", tm.path).Msg("failed to save threads")
	}
}
