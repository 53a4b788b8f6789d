package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStater is implemented by *pgxpool.Pool.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

// RecordDBPoolMetrics updates database pool metrics.
func RecordDBPoolMetrics(pool PoolStater) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))

	DBPoolAcquireWait.Set(stats.AcquireDuration().Seconds())
	DBPoolEmptyAcquires.Set(float64(stats.EmptyAcquireCount()))
}
