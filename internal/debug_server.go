package internal

import (
	"comm-rendezvous/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// SessionRow is one line of the /sessions page. The group id only appears as a fingerprint.
type SessionRow struct {
	SessionID domain.SessionID  `json:"session_id"`
	Rank      int               `json:"rank"`
	Size      int               `json:"size"`
	Group     string            `json:"group"`
	Endpoints []domain.Endpoint `json:"endpoints,omitempty"`
}

type SessionsProvider func() (map[domain.SessionID]domain.Entry, error)
type WorkersProvider func() []domain.WorkerHealth

// StartDebugServer serves the session table of this process on /sessions and, when
// workers is not nil, the scheduler's membership on /workers.
func StartDebugServer(log *slog.Logger, port int, process string,
	sessions SessionsProvider, workers WorkersProvider) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		snapshot, err := sessions()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"process":  process,
			"sessions": ToSessionRows(snapshot),
		})
	})

	if workers != nil {
		mux.HandleFunc("/workers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{
				"process": process,
				"workers": workers(),
			})
		})
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Debug server available", "url", fmt.Sprintf("http://localhost:%d/sessions", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Debug server stopped", "error", err)
		}
	}()
	return server
}

// ToSessionRows flattens a session table, ordered by session id.
func ToSessionRows(snapshot map[domain.SessionID]domain.Entry) []SessionRow {
	rows := make([]SessionRow, 0, len(snapshot))
	for id, entry := range snapshot {
		rows = append(rows, SessionRow{
			SessionID: id,
			Rank:      entry.Rank,
			Size:      entry.Size,
			Group:     entry.GroupID.Fingerprint(),
			Endpoints: entry.Endpoints,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SessionID < rows[j].SessionID })
	return rows
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
