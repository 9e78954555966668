package client

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lambdcalculus/dmbn/pkg/codec"
	"github.com/lambdcalculus/dmbn/pkg/logger"
)

var ErrUnknownLogin = errors.New("client: unknown login")

// Sessions maps each authenticated login to its live client. There's at most
// one client per login.
// Its methods can be called from multiple goroutines.
type Sessions struct {
	mu      sync.RWMutex
	byLogin map[string]*Client
	logger  *logger.Logger
}

// Creates an empty session registry.
func NewSessions(log *logger.Logger) *Sessions {
	return &Sessions{
		byLogin: make(map[string]*Client),
		logger:  log,
	}
}

// Binds `login` to `c`. If another client was bound to the same login, it is
// returned so the caller can disconnect it.
func (s *Sessions) Register(login string, c *Client) (replaced *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.byLogin[login]
	s.byLogin[login] = c
	if old == c {
		return nil
	}
	return old
}

// Removes the session of `login`, but only if it still belongs to `c`; a
// client that was replaced must not remove its successor.
func (s *Sessions) Unregister(login string, c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byLogin[login]; ok && cur == c {
		delete(s.byLogin, login)
		return true
	}
	return false
}

// Removes whichever session `c` holds, looking it up by connection. Returns the
// login it was bound to.
func (s *Sessions) UnregisterClient(c *Client) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for login, cur := range s.byLogin {
		if cur == c {
			delete(s.byLogin, login)
			return login, true
		}
	}
	return "", false
}

// Returns the client bound to `login`.
func (s *Sessions) Get(login string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byLogin[login]
	return c, ok
}

// Returns the logins with a live session, sorted.
func (s *Sessions) Logins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logins := make([]string, 0, len(s.byLogin))
	for login := range s.byLogin {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	return logins
}

// Returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byLogin)
}

// Sends `v` to the session of `login`. Fails with [ErrUnknownLogin] if there's none.
func (s *Sessions) SendTo(login string, v any) error {
	c, ok := s.Get(login)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownLogin, login)
	}
	return c.Send(v)
}

// Sends `v` to every session at once. The value is encoded a single time.
// Delivery is best-effort: a failing client doesn't stop the others, and all
// failures are returned together.
func (s *Sessions) Broadcast(v any) error {
	b, err := codec.Encode(v)
	if err != nil {
		return err
	}

	s.mu.RLock()
	targets := make(map[string]*Client, len(s.byLogin))
	for login, c := range s.byLogin {
		targets[login] = c
	}
	s.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for login, c := range targets {
		wg.Add(1)
		go func(login string, c *Client) {
			defer wg.Done()
			if err := c.WriteFrame(b); err != nil {
				s.logger.Debugf("Broadcast to %v failed (%v).", login, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%v: %w", login, err))
				mu.Unlock()
			}
		}(login, c)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Empties the registry and disconnects every client. Close errors are logged
// and skipped.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	clients := s.byLogin
	s.byLogin = make(map[string]*Client)
	s.mu.Unlock()

	for login, c := range clients {
		if err := c.Close(); err != nil {
			s.logger.Debugf("Error closing session of %v (%v).", login, err)
		}
	}
}
