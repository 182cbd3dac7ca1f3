package utils

import (
	"context"

	"github.com/sigweihq/wcbroker/pkg/constants"
)

// RetryWithRefresh runs a credential-dependent call, retrying it exactly once with refresh=true
// when the first attempt fails with an error shouldRetry accepts (nil accepts every error).
// The call is never attempted more than constants.MaxAuthAttempts times.
func RetryWithRefresh(ctx context.Context, call func(ctx context.Context, refresh bool) error, shouldRetry func(error) bool) error {
	var err error
	for attempt := 0; attempt < constants.MaxAuthAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = call(ctx, attempt > 0)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
	}
	return err
}
