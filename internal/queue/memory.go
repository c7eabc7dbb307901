package queue

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process Backend for tests and single-process runs.
type Memory struct {
	mu       sync.Mutex
	pending  map[string]bool
	order    []string
	inFlight map[string]memLease
	dead     []DeadLetter
}

type memLease struct {
	payload string
	until   time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		pending:  make(map[string]bool),
		inFlight: make(map[string]memLease),
	}
}

func (m *Memory) Push(_ context.Context, payload string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.push(payload), nil
}

func (m *Memory) push(payload string) bool {
	if m.pending[payload] {
		return false
	}
	m.pending[payload] = true
	m.order = append(m.order, payload)
	return true
}

func (m *Memory) Pop(_ context.Context, leaseUntil time.Time) (Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return Lease{}, false, nil
	}
	payload := m.order[0]
	m.order[0] = ""
	m.order = m.order[1:]
	delete(m.pending, payload)
	token := ulid.Make().String()
	m.inFlight[token] = memLease{payload: payload, until: leaseUntil}
	return Lease{Token: token, Payload: payload}, true, nil
}

func (m *Memory) Ack(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, token)
	return nil
}

func (m *Memory) Reap(_ context.Context, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, l := range m.inFlight {
		if limit > 0 && n >= limit {
			break
		}
		if l.until.After(now) {
			continue
		}
		delete(m.inFlight, token)
		m.push(l.payload)
		n++
	}
	return n, nil
}

func (m *Memory) DeadLetter(_ context.Context, letter DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = append(m.dead, letter)
	if len(m.dead) > deadLetterCap {
		m.dead = m.dead[len(m.dead)-deadLetterCap:]
	}
	return nil
}

func (m *Memory) DeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if limit > 0 && len(m.dead) > limit {
		start = len(m.dead) - limit
	}
	return append([]DeadLetter(nil), m.dead[start:]...), nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Pending:  int64(len(m.order)),
		InFlight: int64(len(m.inFlight)),
		Dead:     int64(len(m.dead)),
	}, nil
}

func (m *Memory) Wipe(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]bool)
	m.order = nil
	m.inFlight = make(map[string]memLease)
	m.dead = nil
	return nil
}
