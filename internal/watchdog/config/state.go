package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/atlashq/atlas/internal/watchdog/types"
)

// StateStore persists restart counters keyed by pid_jobname. The file is
// read-modify-written whole; a single watchdog instance is assumed.
type StateStore struct {
	path string
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the state file, returning an empty map when it does not
// exist yet.
func (s *StateStore) Load() (map[string]types.RestartRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]types.RestartRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watchdog state: %w", err)
	}

	state := map[string]types.RestartRecord{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt watchdog state %s: %w", s.path, err)
	}
	return state, nil
}

func (s *StateStore) save(state map[string]types.RestartRecord) error {
	return writeJSONFile(s.path, state)
}

// RestartCount returns the persisted restart count for a job key.
func (s *StateStore) RestartCount(key string) (int, error) {
	state, err := s.Load()
	if err != nil {
		return 0, err
	}
	return state[key].RestartCount, nil
}

// IncrementRestart bumps and persists the restart counter for a job key.
// The counter is incremented even when the restart spawn failed, so a
// broken restart command cannot respawn forever.
func (s *StateStore) IncrementRestart(key string) (int, error) {
	state, err := s.Load()
	if err != nil {
		return 0, err
	}
	record := state[key]
	record.RestartCount++
	record.LastRestart = time.Now().UTC()
	state[key] = record

	if err := s.save(state); err != nil {
		return 0, err
	}
	return record.RestartCount, nil
}
