package storage

import (
	"comm-rendezvous/domain"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const sessionPrefix = "session:"

// SessionStore is a contract.Store backed by Badger.
// Session state must not outlive the process, so the database is expected to be
// opened in memory (see OpenInMemory).
type SessionStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSessionStore(db *badger.DB, log *slog.Logger) *SessionStore {
	return &SessionStore{db: db, log: log}
}

// OpenInMemory opens a Badger instance that never touches the disk.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("in-memory badger: %w", err)
	}
	return db, nil
}

func (s *SessionStore) Load(sessionID domain.SessionID) (domain.Entry, bool, error) {
	var entry domain.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			entry, err = decodeEntry(v)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Entry{}, false, nil
	}
	if err != nil {
		return domain.Entry{}, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return entry, true, nil
}

func (s *SessionStore) Save(sessionID domain.SessionID, entry domain.Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(sessionID), data)
	})
}

func (s *SessionStore) Delete(sessionID domain.SessionID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
}

func (s *SessionStore) Keys() ([]domain.SessionID, error) {
	var keys []domain.SessionID
	prefix := []byte(sessionPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			keys = append(keys, domain.SessionID(strings.TrimPrefix(key, sessionPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return keys, nil
}

func sessionKey(sessionID domain.SessionID) []byte {
	return []byte(sessionPrefix + string(sessionID))
}

func encodeEntry(e domain.Entry) ([]byte, error) {
	endpoints := make([]any, 0, len(e.Endpoints))
	for _, ep := range e.Endpoints {
		endpoints = append(endpoints, map[string]any{
			"rank":    ep.Rank,
			"address": ep.Address,
		})
	}
	st, err := structpb.NewStruct(map[string]any{
		"group_id":  []byte(e.GroupID),
		"rank":      e.Rank,
		"size":      e.Size,
		"endpoints": endpoints,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeEntry(data []byte) (domain.Entry, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return domain.Entry{}, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	fields := st.GetFields()

	gid, err := base64.StdEncoding.DecodeString(fields["group_id"].GetStringValue())
	if err != nil {
		return domain.Entry{}, fmt.Errorf("corrupt group id: %w", err)
	}
	entry := domain.Entry{
		GroupID: gid,
		Rank:    int(fields["rank"].GetNumberValue()),
		Size:    int(fields["size"].GetNumberValue()),
	}
	for _, v := range fields["endpoints"].GetListValue().GetValues() {
		ep := v.GetStructValue().GetFields()
		entry.Endpoints = append(entry.Endpoints, domain.Endpoint{
			Rank:    int(ep["rank"].GetNumberValue()),
			Address: ep["address"].GetStringValue(),
		})
	}
	if len(entry.GroupID) == 0 {
		entry.GroupID = nil
	}
	return entry, nil
}
