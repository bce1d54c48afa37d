package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rangeHedger/internal/engine"
	"rangeHedger/internal/model"
)

// LoopState is what survives a restart: the range machine state, the active
// position, and the hedge mirror. Everything else is re-read fresh.
type LoopState struct {
	State      engine.State     `json:"state"`
	PositionID uint64           `json:"position_id"`
	Hedge      model.HedgeState `json:"hedge"`
	UpdatedAt  string           `json:"updated_at"`
}

// StateStore persists loop state to disk.
type StateStore struct {
	path    string
	enabled bool
}

func NewStateStore(path string, enabled bool) *StateStore {
	return &StateStore{path: path, enabled: enabled}
}

func (s *StateStore) Load() (LoopState, bool, error) {
	if !s.enabled {
		return LoopState{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoopState{}, false, nil
		}
		return LoopState{}, false, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return LoopState{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return LoopState{}, false, fmt.Errorf("read state file: %w", err)
	}

	var state LoopState
	if err := json.Unmarshal(data, &state); err != nil {
		return LoopState{}, false, fmt.Errorf("parse state file: %w", err)
	}

	return state, true, nil
}

func (s *StateStore) Save(state LoopState) error {
	if !s.enabled {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}
