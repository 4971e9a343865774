package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"crimepatrol/internal/cache"
	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"
)

// memStore is an in-memory SessionStore with the repository's guard semantics
type memStore struct {
	mu       sync.Mutex
	sessions map[string]model.EmergencySession
	writes   int
	failWith error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]model.EmergencySession)}
}

func (m *memStore) put(s model.EmergencySession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memStore) get(id string) (model.EmergencySession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *memStore) Create(_ context.Context, s *model.EmergencySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.writes++
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.EmergencySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateByID(_ context.Context, id string, p model.SessionPatch) (*model.EmergencySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sessions[id]
	switch {
	case !ok:
		return nil, repository.ErrNotFound
	case s.Status == model.SessionResolved:
		return nil, repository.ErrSessionResolved
	case p.RespondedBy != nil && s.RespondedBy != "":
		return nil, repository.ErrAlreadyResponded
	case p.LastPing != nil && s.LastPing.After(*p.LastPing):
		return nil, repository.ErrStalePing
	}

	if p.LastLatitude != nil {
		s.LastLatitude = p.LastLatitude
	}
	if p.LastLongitude != nil {
		s.LastLongitude = p.LastLongitude
	}
	if p.LastPing != nil {
		s.LastPing = *p.LastPing
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.RespondedBy != nil {
		s.RespondedBy = *p.RespondedBy
	}
	if p.RespondedAt != nil {
		s.RespondedAt = p.RespondedAt
	}
	if p.ResolvedBy != nil {
		s.ResolvedBy = *p.ResolvedBy
	}
	if p.ResolvedAt != nil {
		s.ResolvedAt = p.ResolvedAt
	}
	m.writes++
	m.sessions[id] = s
	return &s, nil
}

func (m *memStore) Query(_ context.Context, q model.SessionQuery) ([]*model.EmergencySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []*model.EmergencySession{}
	for _, s := range m.sessions {
		if q.Status != "" && s.Status != q.Status {
			continue
		}
		if q.Since != nil && !s.Timestamp.After(*q.Since) {
			continue
		}
		if q.Box != nil && !q.Box.Contains(s.Latitude, s.Longitude) {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type emitted struct {
	Rooms   []string
	Except  string
	Type    string
	Payload interface{}
}

// recordingBroadcaster captures every emit
type recordingBroadcaster struct {
	mu    sync.Mutex
	emits []emitted
	sizes map[string]int
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{sizes: make(map[string]int)}
}

func (b *recordingBroadcaster) EmitToRooms(rooms []string, except, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, emitted{Rooms: rooms, Except: except, Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) RoomSize(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizes[room]
}

func (b *recordingBroadcaster) setSize(room string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sizes[room] = n
}

func (b *recordingBroadcaster) all() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emitted(nil), b.emits...)
}

func (b *recordingBroadcaster) ofType(msgType string) []emitted {
	var out []emitted
	for _, e := range b.all() {
		if e.Type == msgType {
			out = append(out, e)
		}
	}
	return out
}

type reply struct {
	Type    string
	Payload interface{}
}

// fakeReplier stands in for a live connection
type fakeReplier struct {
	id      string
	replies []reply
}

func (r *fakeReplier) ConnID() string { return r.id }

func (r *fakeReplier) Reply(msgType string, payload interface{}) {
	r.replies = append(r.replies, reply{Type: msgType, Payload: payload})
}

// memLiveCache is an in-memory LiveSessionCache
type memLiveCache struct {
	mu    sync.Mutex
	pings map[string]time.Time
}

func newMemLiveCache() *memLiveCache {
	return &memLiveCache{pings: make(map[string]time.Time)}
}

func (c *memLiveCache) Touch(_ context.Context, id string, lastPing time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.pings[id]; !ok || lastPing.After(cur) {
		c.pings[id] = lastPing
	}
	return nil
}

func (c *memLiveCache) Remove(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pings, id)
	return nil
}

func (c *memLiveCache) Stale(_ context.Context, cutoff time.Time) ([]cache.StaleEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cache.StaleEntry
	for id, ts := range c.pings {
		if ts.Before(cutoff) {
			out = append(out, cache.StaleEntry{SessionID: id, LastPing: ts})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastPing.Before(out[j].LastPing) })
	return out, nil
}

func (c *memLiveCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pings[id]
	return ok
}

func ptr[T any](v T) *T { return &v }
