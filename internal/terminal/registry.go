package terminal

import (
	"sort"
	"sync"
	"time"
)

// Attachment records one live connection holding a bridge. The connection
// ID is unique per WebSocket; several attachments may point at the same
// session when multiple tabs view it.
type Attachment struct {
	ID          string
	SessionID   string
	RemoteAddr  string
	ConnectedAt time.Time

	bridge Bridge
}

// AttachmentInfo is the JSON view of an attachment exposed over the API.
type AttachmentInfo struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry tracks every live attachment in the process. A bridge is
// registered when its connection completes the handshake and removed when
// the connection tears down, so no bridge ever outlives its connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Attachment
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Attachment)}
}

// Register records a new attachment under the given connection ID.
func (r *Registry) Register(id, sessionID, remoteAddr string, b Bridge) *Attachment {
	a := &Attachment{
		ID:          id,
		SessionID:   sessionID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		bridge:      b,
	}
	r.mu.Lock()
	r.conns[id] = a
	r.mu.Unlock()
	return a
}

// Remove drops the attachment for the given connection ID, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Count returns the number of live attachments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountForSession returns how many attachments currently view a session.
func (r *Registry) CountForSession(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.conns {
		if a.SessionID == sessionID {
			n++
		}
	}
	return n
}

// Snapshot returns the current attachments sorted by connect time.
func (r *Registry) Snapshot() []AttachmentInfo {
	r.mu.RLock()
	out := make([]AttachmentInfo, 0, len(r.conns))
	for _, a := range r.conns {
		out = append(out, AttachmentInfo{
			ID:          a.ID,
			SessionID:   a.SessionID,
			RemoteAddr:  a.RemoteAddr,
			ConnectedAt: a.ConnectedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// KillAll terminates every registered bridge. Used during shutdown; exit
// callbacks run as usual, so connections observe a normal process exit.
func (r *Registry) KillAll() {
	r.mu.RLock()
	bridges := make([]Bridge, 0, len(r.conns))
	for _, a := range r.conns {
		if a.bridge != nil {
			bridges = append(bridges, a.bridge)
		}
	}
	r.mu.RUnlock()

	for _, b := range bridges {
		b.Kill()
	}
}
