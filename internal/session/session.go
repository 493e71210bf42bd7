// Package session holds per-browser-session UI state.
//
// A session is created on first visit, identified by an opaque sid cookie,
// and lives until the process restarts or the user resets it. It carries
// the one piece of state the two-action flow needs between clicks: the
// fetched RecordTable, plus the last status message to show inline.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redcap-tools/snowbridge/pkg/models"
)

const sidCookieName = "sid"

// Level classifies a flash message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Flash is a one-shot status message rendered inline on the next page view.
type Flash struct {
	Level   Level
	Message string
}

// Session is the state of one UI session. All access goes through methods;
// the mutex exists because distinct requests from the same browser can
// overlap even though each user action is synchronous.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.Mutex
	table *models.RecordTable
	flash *Flash
}

// SetTable stores the fetched snapshot, replacing any previous one.
func (s *Session) SetTable(t *models.RecordTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
}

// Table returns the held snapshot, or nil when none has been fetched.
func (s *Session) Table() *models.RecordTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// ClearTable drops the held snapshot.
func (s *Session) ClearTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = nil
}

// SetFlash stores the status message for the next page view.
func (s *Session) SetFlash(level Level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = &Flash{Level: level, Message: message}
}

// TakeFlash returns and clears the pending status message.
func (s *Session) TakeFlash() *Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flash
	s.flash = nil
	return f
}

// Store is an in-memory session store keyed by sid.
type Store struct {
	mu    sync.Mutex
	bySID map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{bySID: map[string]*Session{}}
}

// Get returns the session for the sid, if present.
func (st *Store) Get(sid string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.bySID[sid]
	return s, ok
}

// Create allocates a new session.
func (st *Store) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
	st.bySID[s.ID] = s
	return s
}

// Delete removes the session for the sid.
func (st *Store) Delete(sid string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.bySID, sid)
}

// FromRequest returns the request's session, creating one (and setting the
// cookie) when the request carries no valid sid.
func (st *Store) FromRequest(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(sidCookieName); err == nil && c.Value != "" {
		if s, ok := st.Get(c.Value); ok {
			return s
		}
	}

	s := st.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}
