// Package runtime holds the state every process (worker, scheduler or client) keeps about
// the sessions it takes part in, and the handlers other processes invoke on it.
package runtime

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"fmt"
	"log/slog"
)

// SessionState maps session ids to this process's view of each session.
//
// One instance lives per process and is injected into the handlers that remote
// calls land on. Operations on one session are mutually exclusive; operations on
// distinct sessions never wait for each other.
type SessionState struct {
	log   *slog.Logger
	store contract.Store
	locks *keyedMutex
}

func NewSessionState(log *slog.Logger, store contract.Store) *SessionState {
	return &SessionState{
		log:   log,
		store: store,
		locks: newKeyedMutex(),
	}
}

// Get returns the entry for sessionID, if any.
func (s *SessionState) Get(sessionID domain.SessionID) (domain.Entry, bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.store.Load(sessionID)
}

// Put stores entry under sessionID.
// Registering a group id that differs from the one already held is a consistency
// violation and is never resolved silently. Re-registering the same id overwrites
// the rank, size and endpoints.
func (s *SessionState) Put(sessionID domain.SessionID, entry domain.Entry) error {
	if !entry.Ready() {
		return fmt.Errorf("%w: empty group id for session %s", errors.ErrSessionNotReady, sessionID)
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if err := s.checkConflict(sessionID, entry.GroupID); err != nil {
		return err
	}
	return s.store.Save(sessionID, entry)
}

// LoadOrGenerate returns the entry already held for sessionID or, when there is none,
// stores a new one built from generate. The first writer wins: a retried call never
// produces a second group id for the same session.
func (s *SessionState) LoadOrGenerate(sessionID domain.SessionID, rank, size int,
	generate func() (domain.GroupID, error)) (domain.Entry, bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	existing, ok, err := s.store.Load(sessionID)
	if err != nil {
		return domain.Entry{}, false, err
	}
	if ok && existing.Ready() {
		return existing, false, nil
	}

	gid, err := generate()
	if err != nil {
		return domain.Entry{}, false, fmt.Errorf("group id generation failed: %w", err)
	}
	entry := domain.Entry{GroupID: gid, Rank: rank, Size: size}
	if err := s.store.Save(sessionID, entry); err != nil {
		return domain.Entry{}, false, err
	}
	return entry, true, nil
}

// Update applies fn to the current entry under the session lock.
// fn receives whether an entry exists and must return the entry to store.
func (s *SessionState) Update(sessionID domain.SessionID, fn func(entry domain.Entry, ok bool) (domain.Entry, error)) (domain.Entry, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current, ok, err := s.store.Load(sessionID)
	if err != nil {
		return domain.Entry{}, err
	}
	next, err := fn(current, ok)
	if err != nil {
		return domain.Entry{}, err
	}
	if ok && current.Ready() && !current.GroupID.Equal(next.GroupID) {
		return domain.Entry{}, s.conflict(sessionID, current.GroupID, next.GroupID)
	}
	if err := s.store.Save(sessionID, next); err != nil {
		return domain.Entry{}, err
	}
	return next, nil
}

// Remove forgets sessionID. Removing an unknown session is a no-op.
func (s *SessionState) Remove(sessionID domain.SessionID) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.store.Delete(sessionID)
}

// Snapshot copies every entry currently held.
func (s *SessionState) Snapshot() (map[domain.SessionID]domain.Entry, error) {
	keys, err := s.store.Keys()
	if err != nil {
		return nil, err
	}
	snapshot := make(map[domain.SessionID]domain.Entry, len(keys))
	for _, key := range keys {
		entry, ok, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			snapshot[key] = entry
		}
	}
	return snapshot, nil
}

func (s *SessionState) checkConflict(sessionID domain.SessionID, gid domain.GroupID) error {
	existing, ok, err := s.store.Load(sessionID)
	if err != nil {
		return err
	}
	if ok && existing.Ready() && !existing.GroupID.Equal(gid) {
		return s.conflict(sessionID, existing.GroupID, gid)
	}
	return nil
}

func (s *SessionState) conflict(sessionID domain.SessionID, held, offered domain.GroupID) error {
	s.log.Error("Conflicting group id registration",
		"session_id", sessionID,
		"held", held.Fingerprint(),
		"offered", offered.Fingerprint())
	return fmt.Errorf("%w: session %s already holds group %s, refused %s",
		errors.ErrConflictingRegistration, sessionID, held.Fingerprint(), offered.Fingerprint())
}
