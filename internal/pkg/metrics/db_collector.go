package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// poolStat is the subset of *pgxpool.Stat exported as gauges.
type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	ConstructingConns() int32
	MaxConns() int32
	AcquireDuration() time.Duration
}

// RecordDBPoolMetrics updates database pool metrics from a pool snapshot.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	recordPoolStat(pool.Stat())
}

func recordPoolStat(stat poolStat) {
	DBPoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stat.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
	DBPoolAcquireWait.Set(stat.AcquireDuration().Seconds())
}
