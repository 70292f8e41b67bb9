package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status describes an account's availability in the rotation pool
type Status string

const (
	StatusAvailable Status = "available"
	StatusCooling   Status = "cooling"
	StatusBanned    Status = "banned"
)

// AccountState tracks usage of one rotation account. Credentials live in the
// auth store; only usage bookkeeping goes in this file.
type AccountState struct {
	Username      string    `json:"username"`
	Status        Status    `json:"status"`
	UsedToday     int       `json:"used_today"`
	DayStart      time.Time `json:"day_start"`
	LastUsed      time.Time `json:"last_used,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	AddedAt       time.Time `json:"added_at"`
}

// poolState is the on-disk form of the rotation pool
type poolState struct {
	Active     string                   `json:"active"`
	DailyLimit int                      `json:"daily_limit"`
	Cooldown   time.Duration            `json:"cooldown"`
	Accounts   map[string]*AccountState `json:"accounts"`
	SavedAt    time.Time                `json:"saved_at"`
}

// loadState reads the pool state file, returning an empty state if absent
func loadState(path string) (*poolState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &poolState{Accounts: make(map[string]*AccountState)}, nil
		}
		return nil, fmt.Errorf("failed to read account state: %w", err)
	}

	var state poolState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse account state: %w", err)
	}
	if state.Accounts == nil {
		state.Accounts = make(map[string]*AccountState)
	}
	return &state, nil
}

// saveState writes the pool state atomically
func saveState(path string, state *poolState) error {
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account state: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize state file: %w", err)
	}
	return nil
}
