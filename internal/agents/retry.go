package agents

import (
	"context"
	"time"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/logging"
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default SleepFunc
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryController bounds how often a fallible operation is re-attempted.
// Only errors classified as retryable are retried; the wait between
// attempts is fixed.
type RetryController struct {
	maxFailures int
	backoff     time.Duration
	sleep       SleepFunc
	logger      *logging.Logger
}

// NewRetryController creates a controller allowing maxFailures failed
// attempts. A nil sleep uses SleepContext.
func NewRetryController(maxFailures int, backoff time.Duration, sleep SleepFunc, logger *logging.Logger) *RetryController {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if sleep == nil {
		sleep = SleepContext
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RetryController{
		maxFailures: maxFailures,
		backoff:     backoff,
		sleep:       sleep,
		logger:      logger,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or has
// failed maxFailures times, in which case a TooManyFailuresError wrapping
// the last error is returned.
func (rc *RetryController) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	budget := rc.NewBudget(operation)
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if err := budget.Fail(ctx, err); err != nil {
			return err
		}
	}
}

// NewBudget starts a failure count for callers that drive their own loop
func (rc *RetryController) NewBudget(operation string) *FailureBudget {
	return &FailureBudget{rc: rc, operation: operation}
}

// FailureBudget counts the failures of one operation
type FailureBudget struct {
	rc        *RetryController
	operation string
	failures  int
}

// Fail records err. It returns nil after the backoff when another attempt
// is allowed, or the error that should end the operation.
func (b *FailureBudget) Fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !apperrors.IsRetryable(err) {
		return err
	}

	b.failures++
	if b.failures >= b.rc.maxFailures {
		b.rc.logger.Error("Giving up after repeated failures",
			logging.String("operation", b.operation),
			logging.Int("failures", b.failures),
			logging.Error(err))
		return apperrors.NewTooManyFailuresError(b.operation, b.failures, err)
	}

	b.rc.logger.Warn("Attempt failed, retrying",
		logging.String("operation", b.operation),
		logging.Int("failures", b.failures),
		logging.Int("max_failures", b.rc.maxFailures),
		logging.Duration("backoff", b.rc.backoff),
		logging.Error(err))
	return b.rc.sleep(ctx, b.rc.backoff)
}

// Failures returns the number of retryable failures recorded
func (b *FailureBudget) Failures() int {
	return b.failures
}
