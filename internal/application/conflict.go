package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/resilience"
)

// conflictRetry reruns a load-modify-save cycle that lost the race against
// another process writing the same document
var conflictRetry = &resilience.RetryConfig{
	MaxAttempts:   5,
	InitialDelay:  10 * time.Millisecond,
	MaxDelay:      200 * time.Millisecond,
	BackoffFactor: 2.0,
	RetryableErrors: func(err error) bool {
		return errors.Is(err, domain.ErrConcurrentModification)
	},
}

func retryOnConflict(ctx context.Context, fn func() error) error {
	return resilience.Retry(ctx, conflictRetry, fn)
}

// persistenceError hides store failures behind domain.ErrPersistence.
// Version conflicts pass through so callers can retry them.
func persistenceError(err error) error {
	if errors.Is(err, domain.ErrConcurrentModification) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
