package handler

import (
	"sync"
	"time"

	"github.com/northstarrec/outdial/pkg/agent"
)

// activeCall is one live call session. Its mutex serializes turns so two
// concurrent requests for the same call cannot interleave state updates.
type activeCall struct {
	mu sync.Mutex

	state      agent.CallState
	profile    agent.PartyProfile
	acct       agent.AccountContext
	policyName string
	jobID      string
	accountRef string
	campaignID string

	startedAt    time.Time
	lastActivity time.Time
}

// CallStore holds active call sessions in memory. Call state is also
// returned to the caller on every turn, so a restart loses liveness but not
// truth.
type CallStore struct {
	mu    sync.RWMutex
	calls map[string]*activeCall
}

// NewCallStore creates an empty call store.
func NewCallStore() *CallStore {
	return &CallStore{calls: make(map[string]*activeCall)}
}

// Put registers a call session.
func (s *CallStore) Put(id string, ac *activeCall) {
	s.mu.Lock()
	s.calls[id] = ac
	s.mu.Unlock()
}

// Get returns the session for a call id.
func (s *CallStore) Get(id string) (*activeCall, bool) {
	s.mu.RLock()
	ac, ok := s.calls[id]
	s.mu.RUnlock()
	return ac, ok
}

// Delete removes a call session.
func (s *CallStore) Delete(id string) {
	s.mu.Lock()
	delete(s.calls, id)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *CallStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// ReapStale removes sessions idle past the TTL and returns their ids.
func (s *CallStore) ReapStale(ttl time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	for id, ac := range s.calls {
		if now.Sub(ac.lastActivity) > ttl {
			delete(s.calls, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}
