package usecase

import (
	"context"
	"fmt"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

const (
	lockTranslation = "affinenews.translation"
	lockEmbedding   = "affinenews.embedding"
	lockAnnotation  = "affinenews.annotation"
)

// withLock runs fn while holding the named lock. A nil locker runs fn directly.
func withLock(ctx context.Context, locker ports.Locker, name string, fn func() error) error {
	if locker == nil {
		return fn()
	}
	unlock, acquired, err := locker.TryLock(ctx, name)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !acquired {
		return fmt.Errorf("%s: %w", name, domain.ErrStageBusy)
	}
	defer unlock()
	return fn()
}

// withTimeout bounds a collaborator call. A non-positive timeout only adds cancellation.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
