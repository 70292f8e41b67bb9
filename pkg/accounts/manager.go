package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"igrelay/pkg/auth"
	"igrelay/pkg/config"
	"igrelay/pkg/logger"
)

// Pool errors
var (
	ErrNoAccounts      = errors.New("no accounts in rotation pool")
	ErrAllExhausted    = errors.New("all accounts are cooling down or banned")
	ErrAccountNotFound = errors.New("account not found in pool")
	ErrAlreadyInPool   = errors.New("account already in pool")
	ErrRotationRunning = errors.New("auto-rotation already running")
	ErrRotationStopped = errors.New("auto-rotation is not running")
)

// Manager runs the rotation account pool. Fetching on behalf of users burns
// through per-account request budgets, so the pool spreads work across
// accounts, rests them after their daily limit and benches banned ones.
type Manager struct {
	cfg    *config.AccountsConfig
	creds  *auth.Manager
	logger logger.Logger

	mu    sync.Mutex
	state *poolState

	rotateCancel context.CancelFunc
	rotateDone   chan struct{}
}

// NewManager loads the pool state and wires it to the credential store
func NewManager(cfg *config.AccountsConfig, creds *auth.Manager, log logger.Logger) (*Manager, error) {
	state, err := loadState(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	if state.DailyLimit == 0 {
		state.DailyLimit = cfg.DailyLimit
	}
	if state.Cooldown == 0 {
		state.Cooldown = cfg.Cooldown
	}

	return &Manager{
		cfg:    cfg,
		creds:  creds,
		logger: log,
		state:  state,
	}, nil
}

// Add registers an account in the pool and stores its credentials
func (m *Manager) Add(username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.state.Accounts[username]; exists {
		return ErrAlreadyInPool
	}

	if err := m.creds.Store(&auth.Account{Username: username, Password: password}); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	now := time.Now()
	m.state.Accounts[username] = &AccountState{
		Username: username,
		Status:   StatusAvailable,
		DayStart: now,
		AddedAt:  now,
	}
	if m.state.Active == "" {
		m.state.Active = username
	}

	if err := m.persist(); err != nil {
		return err
	}

	m.logger.InfoWithFields("account added to pool", map[string]interface{}{
		"username": username,
		"pool":     len(m.state.Accounts),
	})
	return nil
}

// Remove drops an account from the pool and deletes its credentials
func (m *Manager) Remove(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.state.Accounts[username]; !exists {
		return ErrAccountNotFound
	}

	delete(m.state.Accounts, username)
	_ = m.creds.Delete(username)

	if m.state.Active == username {
		m.state.Active = ""
		if best := m.pickBestLocked(); best != nil {
			m.state.Active = best.Username
		}
	}

	if err := m.persist(); err != nil {
		return err
	}

	m.logger.InfoWithFields("account removed from pool", map[string]interface{}{
		"username": username,
		"pool":     len(m.state.Accounts),
	})
	return nil
}

// List returns a snapshot of all pool accounts, sorted by username
func (m *Manager) List() []AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshLocked()

	out := make([]AccountState, 0, len(m.state.Accounts))
	for _, st := range m.state.Accounts {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Active returns the username of the account currently in use, or ""
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Active
}

// DailyLimit returns the per-account daily request limit
func (m *Manager) DailyLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DailyLimit
}

// Cooldown returns the rest period applied to exhausted accounts
func (m *Manager) Cooldown() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Cooldown
}

// SetDailyLimit updates the per-account daily request limit
func (m *Manager) SetDailyLimit(limit int) error {
	if limit <= 0 {
		return errors.New("daily limit must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.DailyLimit = limit
	return m.persist()
}

// SetCooldown updates the rest period applied to exhausted accounts
func (m *Manager) SetCooldown(d time.Duration) error {
	if d <= 0 {
		return errors.New("cooldown must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Cooldown = d
	return m.persist()
}

// Acquire returns credentials for the account to use for the next request
// and counts the use against its daily budget.
func (m *Manager) Acquire() (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshLocked()

	if len(m.state.Accounts) == 0 {
		return nil, ErrNoAccounts
	}

	st := m.usableActiveLocked()
	if st == nil {
		st = m.pickBestLocked()
	}
	if st == nil {
		return nil, ErrAllExhausted
	}

	account, err := m.creds.Retrieve(st.Username)
	if err != nil {
		return nil, fmt.Errorf("credentials missing for %s: %w", st.Username, err)
	}

	m.state.Active = st.Username
	st.UsedToday++
	st.LastUsed = time.Now()
	if st.UsedToday >= m.state.DailyLimit {
		m.coolLocked(st)
	}

	if err := m.persist(); err != nil {
		return nil, err
	}
	return account, nil
}

// Rotate switches the active account to the least used available one.
// Returns the new active username.
func (m *Manager) Rotate() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshLocked()

	if len(m.state.Accounts) == 0 {
		return "", ErrNoAccounts
	}

	var best *AccountState
	for _, st := range m.state.Accounts {
		if st.Status != StatusAvailable || st.Username == m.state.Active {
			continue
		}
		if best == nil || st.UsedToday < best.UsedToday {
			best = st
		}
	}
	if best == nil {
		return "", ErrAllExhausted
	}

	previous := m.state.Active
	m.state.Active = best.Username
	if err := m.persist(); err != nil {
		return "", err
	}

	m.logger.InfoWithFields("rotated active account", map[string]interface{}{
		"from": previous,
		"to":   best.Username,
	})
	return best.Username, nil
}

// Ban marks an account banned so the rotation never picks it again
func (m *Manager) Ban(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.state.Accounts[username]
	if !exists {
		return ErrAccountNotFound
	}

	st.Status = StatusBanned
	if m.state.Active == username {
		m.state.Active = ""
		if best := m.pickBestLocked(); best != nil {
			m.state.Active = best.Username
		}
	}

	m.logger.WarnWithFields("account banned", map[string]interface{}{
		"username": username,
	})
	return m.persist()
}

// PoolStatus summarizes the pool for status reporting
type PoolStatus struct {
	Active       string
	Total        int
	Available    int
	Cooling      int
	Banned       int
	DailyLimit   int
	Cooldown     time.Duration
	AutoRotating bool
	ActiveUsage  float64
}

// Status returns a snapshot of pool health
func (m *Manager) Status() PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshLocked()

	status := PoolStatus{
		Active:       m.state.Active,
		Total:        len(m.state.Accounts),
		DailyLimit:   m.state.DailyLimit,
		Cooldown:     m.state.Cooldown,
		AutoRotating: m.rotateCancel != nil,
	}
	for _, st := range m.state.Accounts {
		switch st.Status {
		case StatusAvailable:
			status.Available++
		case StatusCooling:
			status.Cooling++
		case StatusBanned:
			status.Banned++
		}
	}
	if st, ok := m.state.Accounts[m.state.Active]; ok && m.state.DailyLimit > 0 {
		status.ActiveUsage = float64(st.UsedToday) / float64(m.state.DailyLimit)
	}
	return status
}

// StartAutoRotate begins rotating the active account in the background
// whenever its usage crosses the configured threshold.
func (m *Manager) StartAutoRotate(ctx context.Context) error {
	m.mu.Lock()
	if m.rotateCancel != nil {
		m.mu.Unlock()
		return ErrRotationRunning
	}
	rotateCtx, cancel := context.WithCancel(ctx)
	m.rotateCancel = cancel
	m.rotateDone = make(chan struct{})
	done := m.rotateDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.RotateCheck)
		defer ticker.Stop()

		m.logger.InfoWithFields("auto-rotation started", map[string]interface{}{
			"check_interval": m.cfg.RotateCheck,
			"threshold":      m.cfg.RotateAtUsage,
		})

		for {
			select {
			case <-rotateCtx.Done():
				m.logger.Info("auto-rotation stopped")
				return
			case <-ticker.C:
				m.maybeRotate()
			}
		}
	}()
	return nil
}

// StopAutoRotate stops the background rotation loop
func (m *Manager) StopAutoRotate() error {
	m.mu.Lock()
	cancel := m.rotateCancel
	done := m.rotateDone
	m.rotateCancel = nil
	m.rotateDone = nil
	m.mu.Unlock()

	if cancel == nil {
		return ErrRotationStopped
	}
	cancel()
	<-done
	return nil
}

// AutoRotating reports whether the background rotation loop is running
func (m *Manager) AutoRotating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotateCancel != nil
}

// maybeRotate rotates when the active account's usage crosses the threshold
func (m *Manager) maybeRotate() {
	status := m.Status()
	if status.Active == "" || status.ActiveUsage < m.cfg.RotateAtUsage {
		return
	}
	if _, err := m.Rotate(); err != nil {
		m.logger.WarnWithFields("auto-rotation skipped", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// usableActiveLocked returns the active account's state if it can still serve
func (m *Manager) usableActiveLocked() *AccountState {
	st, ok := m.state.Accounts[m.state.Active]
	if !ok || st.Status != StatusAvailable || st.UsedToday >= m.state.DailyLimit {
		return nil
	}
	return st
}

// pickBestLocked returns the available account with the most budget left
func (m *Manager) pickBestLocked() *AccountState {
	var best *AccountState
	for _, st := range m.state.Accounts {
		if st.Status != StatusAvailable || st.UsedToday >= m.state.DailyLimit {
			continue
		}
		if best == nil || st.UsedToday < best.UsedToday {
			best = st
		}
	}
	return best
}

// coolLocked benches an account until its cooldown elapses
func (m *Manager) coolLocked(st *AccountState) {
	st.Status = StatusCooling
	st.CooldownUntil = time.Now().Add(m.state.Cooldown)
	if m.state.Active == st.Username {
		m.state.Active = ""
		if best := m.pickBestLocked(); best != nil {
			m.state.Active = best.Username
		}
	}
	m.logger.InfoWithFields("account cooling down", map[string]interface{}{
		"username": st.Username,
		"until":    st.CooldownUntil,
	})
}

// refreshLocked expires cooldowns and resets daily counters
func (m *Manager) refreshLocked() {
	now := time.Now()
	changed := false

	for _, st := range m.state.Accounts {
		if now.Sub(st.DayStart) >= 24*time.Hour {
			st.UsedToday = 0
			st.DayStart = now
			changed = true
		}
		if st.Status == StatusCooling && now.After(st.CooldownUntil) {
			st.Status = StatusAvailable
			st.CooldownUntil = time.Time{}
			changed = true
		}
	}

	if m.state.Active == "" {
		if best := m.pickBestLocked(); best != nil {
			m.state.Active = best.Username
			changed = true
		}
	}

	if changed {
		if err := m.persist(); err != nil {
			m.logger.WithError(err).Warn("failed to persist refreshed pool state")
		}
	}
}

// persist writes the pool state to disk; the caller must hold the mutex
func (m *Manager) persist() error {
	return saveState(m.cfg.StateFile, m.state)
}
