package internal

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/infrastructure/storage"
	"comm-rendezvous/runtime"
	"fmt"
	"log/slog"
)

// OpenSessionStore builds the session store selected by kind ("memory" or "badger").
// The returned function releases it.
func OpenSessionStore(kind string, log *slog.Logger) (contract.Store, func(), error) {
	switch kind {
	case "", "memory":
		return runtime.NewMemoryStore(), func() {}, nil
	case "badger":
		db, err := storage.OpenInMemory()
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSessionStore(db, log), func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", kind)
	}
}
