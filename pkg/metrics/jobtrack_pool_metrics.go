package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStats is a point-in-time view of a connection pool.
type PoolStats struct {
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	Max          int           `json:"max"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration_ns"`
}

func fromSQL(db *sql.DB) PoolStats {
	s := db.Stats()
	return PoolStats{
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		Max:          s.MaxOpenConnections,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

func fromPgx(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Open:         int(s.TotalConns()),
		InUse:        int(s.AcquiredConns()),
		Idle:         int(s.IdleConns()),
		Max:          int(s.MaxConns()),
		WaitCount:    s.EmptyAcquireCount(),
		WaitDuration: s.AcquireDuration(),
	}
}

// PoolHealthStatus indicates the health of a connection pool.
type PoolHealthStatus string

const (
	PoolHealthy   PoolHealthStatus = "healthy"
	PoolDegraded  PoolHealthStatus = "degraded"
	PoolUnhealthy PoolHealthStatus = "unhealthy"
)

// AssessPoolHealth grades a pool by utilization.
func AssessPoolHealth(s PoolStats) PoolHealthStatus {
	if s.Max == 0 {
		return PoolHealthy
	}
	utilization := float64(s.InUse) / float64(s.Max)
	switch {
	case utilization >= 0.95:
		return PoolUnhealthy
	case utilization >= 0.80:
		return PoolDegraded
	default:
		return PoolHealthy
	}
}

// =============================================================================
// Pool Monitor
// =============================================================================

// PoolMonitor tracks the named pools of the process.
type PoolMonitor struct {
	mu    sync.RWMutex
	pools map[string]func() PoolStats
}

func NewPoolMonitor() *PoolMonitor {
	return &PoolMonitor{pools: make(map[string]func() PoolStats)}
}

func (m *PoolMonitor) RegisterSQL(name string, db *sql.DB) {
	if db == nil {
		return
	}
	m.register(name, func() PoolStats { return fromSQL(db) })
}

func (m *PoolMonitor) RegisterPgx(name string, pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	m.register(name, func() PoolStats { return fromPgx(pool) })
}

func (m *PoolMonitor) register(name string, fn func() PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[name] = fn
}

// Snapshot reports every pool with its health grade.
func (m *PoolMonitor) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.pools))
	for name, fn := range m.pools {
		s := fn()
		out[name] = map[string]any{
			"stats":  s,
			"health": AssessPoolHealth(s),
		}
	}
	return out
}

var (
	globalMonitor     *PoolMonitor
	globalMonitorOnce sync.Once
)

func GlobalPoolMonitor() *PoolMonitor {
	globalMonitorOnce.Do(func() {
		globalMonitor = NewPoolMonitor()
	})
	return globalMonitor
}
