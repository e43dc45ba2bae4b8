// Package domain contains the core concepts of a communication session.
// No runtime, network, or transport logic should be added here.
package domain

import "github.com/samber/lo"

// SessionID identifies one communication group for its whole lifetime.
type SessionID string

// Identity is a worker's dialable address, e.g. "10.0.0.4:7101".
type Identity string

// NoRank is the rank held by a process that stores a session entry
// without being one of its participants (the client or the scheduler).
const NoRank = -1

// Endpoint is a point-to-point address published by one participant.
type Endpoint struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
}

// Entry is one process's view of a session.
type Entry struct {
	GroupID   GroupID    `json:"group_id"`
	Rank      int        `json:"rank"`
	Size      int        `json:"size"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
}

// Ready reports whether the entry carries a group identifier.
func (e Entry) Ready() bool {
	return !e.GroupID.Empty()
}

// Participant reports whether the holder of the entry is a member of the session.
func (e Entry) Participant() bool {
	return e.Rank >= 0
}

// Session is the client-side description of a communication group.
type Session struct {
	ID           SessionID
	Placement    Placement
	P2P          bool
	Participants []Identity
}

// Size returns the number of participants.
func (s Session) Size() int {
	return len(s.Participants)
}

// Rank returns the zero-based position of id in the participant list.
func (s Session) Rank(id Identity) (int, bool) {
	idx := lo.IndexOf(s.Participants, id)
	return idx, idx >= 0
}

// Ranks maps every participant to its rank.
func (s Session) Ranks() map[Identity]int {
	ranks := make(map[Identity]int, len(s.Participants))
	for i, p := range s.Participants {
		ranks[p] = i
	}
	return ranks
}

// EntryFor builds the entry a participant of the given rank should hold.
func (s Session) EntryFor(rank int, gid GroupID, endpoints []Endpoint) Entry {
	return Entry{
		GroupID:   gid,
		Rank:      rank,
		Size:      s.Size(),
		Endpoints: endpoints,
	}
}

// Source names the process a participant fetches a session entry from.
type Source struct {
	Scheduler bool     `json:"scheduler"`
	Worker    Identity `json:"worker,omitempty"`
}

func SchedulerSource() Source {
	return Source{Scheduler: true}
}

func WorkerSource(id Identity) Source {
	return Source{Worker: id}
}

func (s Source) String() string {
	if s.Scheduler {
		return "scheduler"
	}
	return string(s.Worker)
}

// HandleInfo describes a materialized local handle.
type HandleInfo struct {
	SessionID   SessionID `json:"session_id"`
	Rank        int       `json:"rank"`
	Size        int       `json:"size"`
	Fingerprint string    `json:"fingerprint"`
}
