package session

import (
	"encoding/json"
	"os"

	"github.com/jortega-dev/warelay/internal/domain"
	"github.com/jortega-dev/warelay/internal/logging"
)

// Persister saves and restores the session store as a single JSON file.
// Durability is best-effort: write failures are logged, never raised, and
// a missing or malformed file on load yields an empty result.
type Persister struct {
	path string
	log  *logging.Logger
}

// NewPersister creates a snapshot persister writing to path.
func NewPersister(path string, log *logging.Logger) *Persister {
	return &Persister{path: path, log: log.Sub("snapshot")}
}

// Save serializes the snapshot and overwrites the file. Timestamps are
// encoded as RFC 3339 strings via the session's JSON tags.
func (p *Persister) Save(data map[string]domain.Session) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		p.log.Error().Err(err).Msg("failed to serialize sessions")
		return
	}
	if err := os.WriteFile(p.path, payload, 0o600); err != nil {
		p.log.Error().Err(err).Str("path", p.path).Msg("failed to save sessions")
		return
	}
	p.log.Debug().Int("sessions", len(data)).Str("path", p.path).Msg("sessions saved")
}

// Load reads the snapshot file. Missing file means no prior state, not an
// error. Malformed content is logged and treated as empty. Records from
// older formats are defaulted when the store restores them.
func (p *Persister) Load() map[string]domain.Session {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.Info().Str("path", p.path).Msg("sessions file not found")
		} else {
			p.log.Error().Err(err).Str("path", p.path).Msg("failed to read sessions file")
		}
		return map[string]domain.Session{}
	}

	var sessions map[string]domain.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		p.log.Error().Err(err).Str("path", p.path).Msg("failed to parse sessions file")
		return map[string]domain.Session{}
	}
	if sessions == nil {
		sessions = map[string]domain.Session{}
	}
	p.log.Info().Int("sessions", len(sessions)).Str("path", p.path).Msg("sessions loaded")
	return sessions
}
