//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"comm-rendezvous/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Process is the set of functions a remote process (worker or scheduler) runs on behalf of a caller.
// Every call lands on the target's own session state.
type Process interface {
	// Register stores entry under sessionID, failing on a conflicting group id.
	Register(ctx context.Context, sessionID domain.SessionID, entry domain.Entry) error
	// Generate returns the group id already held for sessionID or creates one (first writer wins).
	Generate(ctx context.Context, sessionID domain.SessionID, rank, size int) (domain.GroupID, error)
	// Fetch reads the entry held by source and stores it locally with the given rank.
	Fetch(ctx context.Context, sessionID domain.SessionID, source domain.Source, rank, size int) (domain.GroupID, error)
	// Lookup exposes the local entry to other processes.
	Lookup(ctx context.Context, sessionID domain.SessionID) (domain.Entry, error)
	// CreateEndpoint opens and records this participant's point-to-point endpoint.
	CreateEndpoint(ctx context.Context, sessionID domain.SessionID) (domain.Endpoint, error)
	// Release drops the entry and the local handle. Idempotent.
	Release(ctx context.Context, sessionID domain.SessionID) error
	// Resolve materializes (once) the local handle and describes it.
	Resolve(ctx context.Context, sessionID domain.SessionID) (domain.HandleInfo, error)
}

// Channel reaches the scheduler and the workers of a cluster.
type Channel interface {
	Scheduler() Process
	Worker(id domain.Identity) Process
	// Workers returns the live worker set as reported by the scheduler.
	Workers(ctx context.Context) ([]domain.Identity, error)
}

// Handle is an initialized native communicator owned by a single process.
type Handle interface {
	Rank() int
	Size() int
	Close() error
}

// Native is the collective/transport library.
type Native interface {
	NewGroupIdentifier() (domain.GroupID, error)
	// CreateHandle blocks until every participant of the group reached it.
	CreateHandle(ctx context.Context, gid domain.GroupID, rank, size int) (Handle, error)
	CreateEndpoint(ctx context.Context, sessionID domain.SessionID, rank int) (domain.Endpoint, error)
}

// Store persists session entries for one process.
// Callers serialize access per session; implementations only need to be safe for distinct keys.
type Store interface {
	Load(sessionID domain.SessionID) (domain.Entry, bool, error)
	Save(sessionID domain.SessionID, entry domain.Entry) error
	Delete(sessionID domain.SessionID) error
	Keys() ([]domain.SessionID, error)
}

// Registrar is the scheduler's membership service as seen by a worker.
type Registrar interface {
	Join(ctx context.Context, id domain.Identity) error
	Heartbeat(ctx context.Context, id domain.Identity, stats domain.ProcessStats) error
	Leave(ctx context.Context, id domain.Identity) error
}
