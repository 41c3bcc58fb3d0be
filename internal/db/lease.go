package db

import (
	"context"
	"fmt"
)

// AdvisoryLease is a cross-instance single-flight guard built on a Postgres
// session advisory lock. The lock lives on one pooled connection which is held
// until release.
type AdvisoryLease struct {
	db  *DB
	key int64
}

func NewAdvisoryLease(d *DB, key int64) *AdvisoryLease {
	return &AdvisoryLease{db: d, key: key}
}

// TryAcquire returns ok=false without blocking when another instance holds the lease.
func (l *AdvisoryLease) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	conn, err := l.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection for lease: %w", err)
	}
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to take advisory lock %d: %w", l.key, err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return func() {
		// unlock on the same session, with a fresh context so a cancelled tick still unlocks
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}, true, nil
}
