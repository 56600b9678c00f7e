package revocation

import (
	"fmt"
	"time"

	"eseva/pkg/platform/sentinel"
)

// Clock returns the current time. Injected for deterministic expiry in tests.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
