package server

import "sync"

// connRegistry tracks every live connection per authenticated user. A user
// may hold several concurrent connections (multi-device); presence teardown
// and offline status only happen once the last one detaches.
type connRegistry struct {
	mu    sync.Mutex
	conns map[int]map[*Client]struct{}
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		conns: make(map[int]map[*Client]struct{}),
	}
}

// attach registers a connection under a user id and reports whether it is
// the user's first live connection. Calling it twice for the same pair is a
// no-op.
func (r *connRegistry) attach(userId int, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := len(r.conns[userId]) == 0
	if r.conns[userId] == nil {
		r.conns[userId] = make(map[*Client]struct{})
	}
	r.conns[userId][c] = struct{}{}

	return first
}

// detach removes the mapping and reports whether this was the user's last
// live connection.
func (r *connRegistry) detach(userId int, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns, ok := r.conns[userId]
	if !ok {
		return false
	}

	delete(userConns, c)
	if len(userConns) == 0 {
		delete(r.conns, userId)
		return true
	}

	return false
}

func (r *connRegistry) isOnline(userId int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns[userId]) > 0
}

func (r *connRegistry) countOnline() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

// clientsFor returns a snapshot of the user's connections for direct fanout.
func (r *connRegistry) clientsFor(userId int) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.conns[userId]))
	for c := range r.conns[userId] {
		clients = append(clients, c)
	}

	return clients
}
