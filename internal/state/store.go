package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/thebronway/domain-manager/pkg/logger"
)

// DomainState is the remembered per-domain state. Fields are overwritten
// independently each cycle, never replaced wholesale. RecordedIP may carry
// the "ALIAS: ..." sentinel when the record is an indirection.
type DomainState struct {
	RecordedIP     *string    `json:"recorded_ip"`
	SSLExpiration  *time.Time `json:"ssl_expiration"`
	LastUpdateTime *time.Time `json:"last_update_time"`
	SSLLastRenew   *time.Time `json:"ssl_last_renew"`
}

// GlobalState is the process-wide state bag persisted between restarts.
// Timestamps serialize as RFC 3339 text, so a round trip preserves the
// instant (offset-normalized, not string-equal).
type GlobalState struct {
	PublicIP        *string                 `json:"public_ip"`
	LastIPCheckTime *time.Time              `json:"last_ip_check_time"`
	DomainStates    map[string]*DomainState `json:"domain_states"`
}

// Store owns GlobalState behind an exclusive lock. Only one engine
// instance may own a given state file; no cross-process locking is done.
type Store struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
	data GlobalState
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		log:  logger.GetLogger(),
		data: GlobalState{DomainStates: make(map[string]*DomainState)},
	}
}

// Load reads the persisted state and merges it into the in-memory
// defaults: keys present in the file overwrite, missing keys keep their
// current value. Any failure is logged and the prior in-memory state is
// kept; Load never aborts the process.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("State file not found, starting with fresh state", "path", s.path)
		} else {
			s.log.Error("Error reading state file, keeping current state", "path", s.path, "error", err)
		}
		return
	}

	var loaded GlobalState
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.log.Error("Error parsing state file, keeping current state", "path", s.path, "error", err)
		return
	}

	if loaded.PublicIP != nil {
		s.data.PublicIP = loaded.PublicIP
	}
	if loaded.LastIPCheckTime != nil {
		s.data.LastIPCheckTime = loaded.LastIPCheckTime
	}
	for name, st := range loaded.DomainStates {
		if st != nil {
			s.data.DomainStates[name] = st
		}
	}

	s.log.Info("Loaded previous state from disk", "path", s.path, "domains", len(loaded.DomainStates))
}

// Save writes the current state to disk. The state is deep-copied under
// the lock before serialization, so concurrent mutation cannot corrupt
// the output.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.log.Error("Error serializing state", "error", err)
		return fmt.Errorf("serialize state: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		s.log.Error("Error saving state file", "path", s.path, "error", err)
		return fmt.Errorf("write state file: %w", err)
	}

	s.log.Debug("Saved app state to disk", "path", s.path)
	return nil
}

// PublicIP returns the last known public IP, if any.
func (s *Store) PublicIP() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.PublicIP == nil {
		return "", false
	}
	return *s.data.PublicIP, true
}

// SetPublicIP records a newly resolved public IP.
func (s *Store) SetPublicIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PublicIP = &ip
}

// ClearPublicIP marks the public IP as unknown.
func (s *Store) ClearPublicIP() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PublicIP = nil
}

// SetLastIPCheck stamps the last resolution attempt.
func (s *Store) SetLastIPCheck(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LastIPCheckTime = &t
}

// LastIPCheck returns the last resolution attempt time, if any.
func (s *Store) LastIPCheck() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastIPCheckTime == nil {
		return time.Time{}, false
	}
	return *s.data.LastIPCheckTime, true
}

// EnsureDomain creates an empty state entry for the domain if none
// exists. Entries are never auto-deleted; stale ones persist harmlessly.
func (s *Store) EnsureDomain(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(name)
}

func (s *Store) ensureLocked(name string) *DomainState {
	if st, ok := s.data.DomainStates[name]; ok {
		return st
	}
	st := &DomainState{}
	s.data.DomainStates[name] = st
	return st
}

// Domain returns a copy of a domain's state.
func (s *Store) Domain(name string) (DomainState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data.DomainStates[name]
	if !ok {
		return DomainState{}, false
	}
	return *st, true
}

// SetRecordedIP overwrites the remembered record value. A nil value means
// the provider reported no record.
func (s *Store) SetRecordedIP(name string, ip *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(name).RecordedIP = ip
}

// SetSSLExpiration overwrites the remembered certificate expiration.
func (s *Store) SetSSLExpiration(name string, t *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(name).SSLExpiration = t
}

// SetLastUpdate stamps a confirmed successful record update.
func (s *Store) SetLastUpdate(name string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(name).LastUpdateTime = &t
}

// SetSSLLastRenew stamps a confirmed certificate renewal.
func (s *Store) SetSSLLastRenew(name string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(name).SSLLastRenew = &t
}

// Snapshot returns a deep copy of the whole state for read-only callers.
func (s *Store) Snapshot() GlobalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (g GlobalState) clone() GlobalState {
	out := GlobalState{
		PublicIP:        copyString(g.PublicIP),
		LastIPCheckTime: copyTime(g.LastIPCheckTime),
		DomainStates:    make(map[string]*DomainState, len(g.DomainStates)),
	}
	for name, st := range g.DomainStates {
		out.DomainStates[name] = &DomainState{
			RecordedIP:     copyString(st.RecordedIP),
			SSLExpiration:  copyTime(st.SSLExpiration),
			LastUpdateTime: copyTime(st.LastUpdateTime),
			SSLLastRenew:   copyTime(st.SSLLastRenew),
		}
	}
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
