package errors

import "fmt"

var (
	ErrTopologyUnavailable     = fmt.Errorf("topology unavailable")
	ErrConflictingRegistration = fmt.Errorf("conflicting registration")
	ErrRendezvousTimeout       = fmt.Errorf("rendezvous timeout")
	ErrSessionNotReady         = fmt.Errorf("session not ready")
	ErrEmptyColor              = fmt.Errorf("empty color")
	ErrPartialTeardown         = fmt.Errorf("partial teardown")
	ErrAlreadyDestroyed        = fmt.Errorf("comm group already destroyed")
	ErrNotInitialized          = fmt.Errorf("comm group not initialized")
	ErrParticipantsReordered   = fmt.Errorf("participants reordered during setup")
	ErrNotParticipant          = fmt.Errorf("process is not a session participant")
	ErrNoParticipants          = fmt.Errorf("no participants")
	ErrUnknownPlacement        = fmt.Errorf("unknown root placement")
	ErrUnknownWorker           = fmt.Errorf("unknown worker")
	ErrUnauthenticated         = fmt.Errorf("unauthenticated")
	ErrWorkerPanic             = fmt.Errorf("worker panic")
)
