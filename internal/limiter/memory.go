package limiter

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process limiter with the same window and lockout rules as PG.
type Memory struct {
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time

	mu   sync.Mutex
	rows map[memKey]*memRow
}

type memKey struct{ email, ip string }

type memRow struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

var (
	_ Limiter = (*Memory)(nil)
	_ Cleaner = (*Memory)(nil)
)

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now, rows: make(map[memKey]*memRow)}
}

func (m *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[memKey{email, string(ipHash)}]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); r.blockedUntil.After(now) {
		return false, r.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[memKey{email, string(ipHash)}] = &memRow{updatedAt: m.now()}
	return nil
}

func (m *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey{email, string(ipHash)}
	r, ok := m.rows[k]
	if !ok {
		r = &memRow{}
		m.rows[k] = r
	}
	if ok && now.Sub(r.updatedAt) > m.window {
		r.fails = 0
	}
	r.fails++
	r.updatedAt = now
	if r.fails >= m.maxFails {
		r.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}

func (m *Memory) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for k, r := range m.rows {
		if !r.blockedUntil.After(now) && now.Sub(r.updatedAt) > olderThan {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}
