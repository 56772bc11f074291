package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/taxi-dispatch/internal/models"
)

// ErrNoSession means the driver has no live websocket.
var ErrNoSession = errors.New("notify: no ws session")

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry tracks connected driver sessions keyed by callsign and
// delivers assignment notices over them.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*wsSession)}
}

func (r *WSRegistry) Add(callsign string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[callsign] = &wsSession{conn: conn}
}

func (r *WSRegistry) Remove(callsign string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callsign)
}

func (r *WSRegistry) DriverAssigned(_ context.Context, job models.Job, driver models.Driver, cfg models.TenantConfig) error {
	r.mu.RLock()
	s, ok := r.sessions[driver.Callsign]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(noticeFor(job, driver, cfg))
}
