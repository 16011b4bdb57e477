package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AffineNews/internal/ports"
)

// AdvisoryLocker takes session-level Postgres advisory locks on a dedicated connection.
type AdvisoryLocker struct {
	db *sql.DB
}

var _ ports.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker wires the pool used to reserve lock connections.
func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock returns acquired=false without blocking when another session holds name.
func (l *AdvisoryLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("reserve lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name)
		_ = conn.Close()
	}
	return unlock, true, nil
}
