package wire

import "comm-rendezvous/domain"

type Empty struct{}

type RegisterRequest struct {
	SessionID domain.SessionID `json:"session_id"`
	Entry     domain.Entry     `json:"entry"`
}

type GenerateRequest struct {
	SessionID domain.SessionID `json:"session_id"`
	Rank      int              `json:"rank"`
	Size      int              `json:"size"`
}

type FetchRequest struct {
	SessionID domain.SessionID `json:"session_id"`
	Source    domain.Source    `json:"source"`
	Rank      int              `json:"rank"`
	Size      int              `json:"size"`
}

// SessionRequest carries the calls that only name a session.
type SessionRequest struct {
	SessionID domain.SessionID `json:"session_id"`
}

type GroupIDResponse struct {
	GroupID domain.GroupID `json:"group_id"`
}

type EntryResponse struct {
	Entry domain.Entry `json:"entry"`
}

type EndpointResponse struct {
	Endpoint domain.Endpoint `json:"endpoint"`
}

type HandleResponse struct {
	Handle domain.HandleInfo `json:"handle"`
}

type SessionsResponse struct {
	Sessions map[domain.SessionID]domain.Entry `json:"sessions"`
}

type JoinRequest struct {
	Worker domain.Identity `json:"worker"`
}

type HeartbeatRequest struct {
	Worker domain.Identity     `json:"worker"`
	Stats  domain.ProcessStats `json:"stats"`
}

type LeaveRequest struct {
	Worker domain.Identity `json:"worker"`
}

type WorkersResponse struct {
	Workers []domain.Identity `json:"workers"`
}

type HealthResponse struct {
	Workers []domain.WorkerHealth `json:"workers"`
}
