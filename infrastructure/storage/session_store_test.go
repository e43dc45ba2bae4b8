package storage

import (
	"comm-rendezvous/domain"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// SetupTestDB initializes a temporary Badger instance for testing
func SetupTestDB(t *testing.T) (*badger.DB, func()) {
	db, err := OpenInMemory()
	require.NoError(t, err)

	return db, func() {
		db.Close()
	}
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := NewSessionStore(db, logger)

	// Given an entry carrying the full endpoint table
	gid := make(domain.GroupID, domain.GroupIDSize)
	for i := range gid {
		gid[i] = byte(i)
	}
	entry := domain.Entry{
		GroupID: gid,
		Rank:    2,
		Size:    4,
		Endpoints: []domain.Endpoint{
			{Rank: 0, Address: "ucx://w0/s/0"},
			{Rank: 2, Address: "ucx://w2/s/2"},
		},
	}

	// When it is saved then loaded back
	req.NoError(store.Save("s-1", entry))
	loaded, ok, err := store.Load("s-1")

	// Then every byte of the group id and every endpoint survives
	req.NoError(err)
	req.True(ok)
	req.True(entry.GroupID.Equal(loaded.GroupID))
	req.Equal(entry.Rank, loaded.Rank)
	req.Equal(entry.Size, loaded.Size)
	req.Equal(entry.Endpoints, loaded.Endpoints)
}

func TestSessionStore_NonParticipantRank(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	store := NewSessionStore(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	req.NoError(store.Save("s-1", domain.Entry{GroupID: domain.GroupID{1, 2, 3}, Rank: domain.NoRank, Size: 3}))

	loaded, ok, err := store.Load("s-1")
	req.NoError(err)
	req.True(ok)
	req.Equal(domain.NoRank, loaded.Rank)
	req.False(loaded.Participant())
	req.Empty(loaded.Endpoints)
}

func TestSessionStore_MissingAndDelete(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	store := NewSessionStore(db, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_, ok, err := store.Load("unknown")
	req.NoError(err)
	req.False(ok)

	req.NoError(store.Save("a", domain.Entry{GroupID: domain.GroupID{1}, Rank: 0, Size: 1}))
	req.NoError(store.Save("b", domain.Entry{GroupID: domain.GroupID{2}, Rank: 0, Size: 1}))
	keys, err := store.Keys()
	req.NoError(err)
	req.ElementsMatch([]domain.SessionID{"a", "b"}, keys)

	req.NoError(store.Delete("a"))
	req.NoError(store.Delete("a"))
	keys, err = store.Keys()
	req.NoError(err)
	req.Equal([]domain.SessionID{"b"}, keys)
}
