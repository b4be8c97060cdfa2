// Package settingsstore persists the per-origin SETTINGS entries a peer
// asks to have remembered across sessions (spec 3: "remote SETTINGS
// snapshot and persisted SETTINGS per origin"; spec 4.G step 2: "any
// persisted SETTINGS for this origin with FLAG_SETTINGS_PERSISTED").
//
// Grounded on original_source/SPDY/SPDYSettingsStore.h, whose three
// class methods (settingsForOrigin:, persistSettings:forOrigin:,
// clearSettingsForOrigin:) this package's Get/Persist/Clear mirror,
// widened from a process-global Objective-C singleton to an instance a
// session.Pool owns so multiple pools in one process don't share state.
package settingsstore

import (
	"sync"

	"github.com/twitter-archive/spdy/frame"
)

// Store is a concurrency-safe, in-memory per-origin SETTINGS cache. key
// is whatever the caller uses to identify an origin (session.Origin's
// String() form); settingsstore has no dependency on the session
// package so the two can be tested independently.
type Store struct {
	mu       sync.RWMutex
	byOrigin map[string]map[frame.SettingsId]frame.SettingsFlagIdValue
}

// New creates an empty Store.
func New() *Store {
	return &Store{byOrigin: make(map[string]map[frame.SettingsId]frame.SettingsFlagIdValue)}
}

// Get returns the persisted entries for origin, marked
// FLAG_SETTINGS_PERSISTED (spec 4.G step 2) so the session that sends
// them back to the peer doesn't need to set the flag itself.
func (s *Store) Get(origin string) []frame.SettingsFlagIdValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.byOrigin[origin]
	if !ok {
		return nil
	}
	out := make([]frame.SettingsFlagIdValue, 0, len(entries))
	for _, fiv := range entries {
		fiv.Flag = frame.FlagSettingsPersisted
		out = append(out, fiv)
	}
	return out
}

// Persist records every entry in values flagged PERSIST_VALUE, under
// origin (spec 4.G: "Persist entries flagged PERSIST_VALUE").
func (s *Store) Persist(origin string, values []frame.SettingsFlagIdValue) {
	var toPersist []frame.SettingsFlagIdValue
	for _, v := range values {
		if v.Flag&frame.FlagSettingsPersistValue != 0 {
			toPersist = append(toPersist, v)
		}
	}
	if len(toPersist) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.byOrigin[origin]
	if !ok {
		entries = make(map[frame.SettingsId]frame.SettingsFlagIdValue)
		s.byOrigin[origin] = entries
	}
	for _, v := range toPersist {
		entries[v.Id] = v
	}
}

// Clear discards every persisted entry for origin, per a SETTINGS frame
// carrying FLAG_SETTINGS_CLEAR_SETTINGS (spec's Open Question on this
// flag, resolved in DESIGN.md as "treat as purge").
func (s *Store) Clear(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byOrigin, origin)
}
