package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/orderbroker/internal/infra/telemetry"
)

type poolGauge struct {
	name        string
	description string
	unit        string
	read        func(*pgxpool.Stat) int64
}

var poolGauges = []poolGauge{
	{"orderbroker_db_pool_connections_total", "Total connections (idle + acquired + constructing)", "{connection}",
		func(s *pgxpool.Stat) int64 { return int64(s.TotalConns()) }},
	{"orderbroker_db_pool_connections_idle", "Idle connections ready for checkout", "{connection}",
		func(s *pgxpool.Stat) int64 { return int64(s.IdleConns()) }},
	{"orderbroker_db_pool_connections_acquired", "Connections held by journal or fill writes", "{connection}",
		func(s *pgxpool.Stat) int64 { return int64(s.AcquiredConns()) }},
	{"orderbroker_db_pool_connections_constructing", "Connections currently being constructed", "{connection}",
		func(s *pgxpool.Stat) int64 { return int64(s.ConstructingConns()) }},
	{"orderbroker_db_pool_empty_acquires", "Acquires that had to wait for a connection", "{acquire}",
		func(s *pgxpool.Stat) int64 { return s.EmptyAcquireCount() }},
}

// ObservePoolMetrics reports pgx pool health through one batch callback. Registration errors
// leave the pool unobserved.
func ObservePoolMetrics(pool *pgxpool.Pool, poolName string) {
	if pool == nil {
		return
	}
	name := strings.TrimSpace(poolName)
	if name == "" {
		name = "primary"
	}
	attrs := metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("db_pool", name),
	)

	meter := otel.Meter("postgres.pool")
	instruments := make([]metric.Int64ObservableGauge, 0, len(poolGauges))
	observables := make([]metric.Observable, 0, len(poolGauges))
	for _, g := range poolGauges {
		gauge, err := meter.Int64ObservableGauge(g.name, metric.WithDescription(g.description), metric.WithUnit(g.unit))
		if err != nil {
			return
		}
		instruments = append(instruments, gauge)
		observables = append(observables, gauge)
	}
	_, _ = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stat := pool.Stat()
		for i, g := range poolGauges {
			observer.ObserveInt64(instruments[i], g.read(stat), attrs)
		}
		return nil
	}, observables...)
}
