package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tabletop-shop/shop-engine/internal/activities"
)

// RetryPolicyType defines different retry policy configurations
type RetryPolicyType int

const (
	// StandardRetry for normal operations (3 attempts, 1s-1m backoff)
	StandardRetry RetryPolicyType = iota
	// AggressiveRetry for steps that must land once money has moved (5 attempts, 500ms-30s backoff)
	AggressiveRetry
	// NoRetry for steps that must not be repeated blindly
	NoRetry
	// UntilDoneRetry for steps that must land before the checkout may end (unlimited attempts, 1s-5m backoff)
	UntilDoneRetry
)

// Activity timeout and retry defaults
const (
	DefaultActivityTimeout         time.Duration = time.Minute
	DefaultRetryInitialInterval    time.Duration = time.Second
	DefaultRetryMaxInterval        time.Duration = time.Minute
	DefaultRetryBackoffCoefficient float64       = 2.0
	DefaultMaxRetryAttempts        int32         = 3
)

// GetRetryPolicy returns a configured retry policy based on type
func GetRetryPolicy(policyType RetryPolicyType) *temporal.RetryPolicy {
	switch policyType {
	case AggressiveRetry:
		return &temporal.RetryPolicy{
			InitialInterval:        500 * time.Millisecond,
			BackoffCoefficient:     DefaultRetryBackoffCoefficient,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{activities.CheckoutRejectedErrorType},
		}

	case UntilDoneRetry:
		return &temporal.RetryPolicy{
			InitialInterval:    DefaultRetryInitialInterval,
			BackoffCoefficient: DefaultRetryBackoffCoefficient,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    0,
		}

	case NoRetry:
		return &temporal.RetryPolicy{
			MaximumAttempts: 1,
		}

	case StandardRetry:
		fallthrough
	default:
		return &temporal.RetryPolicy{
			InitialInterval:        DefaultRetryInitialInterval,
			BackoffCoefficient:     DefaultRetryBackoffCoefficient,
			MaximumInterval:        DefaultRetryMaxInterval,
			MaximumAttempts:        DefaultMaxRetryAttempts,
			NonRetryableErrorTypes: []string{activities.CheckoutRejectedErrorType},
		}
	}
}

// ActivityOptionsConfig defines configuration for activity options
type ActivityOptionsConfig struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         RetryPolicyType
}

// GetActivityOptions returns configured activity options
func GetActivityOptions(config ActivityOptionsConfig) workflow.ActivityOptions {
	if config.StartToCloseTimeout == 0 {
		config.StartToCloseTimeout = DefaultActivityTimeout
	}

	return workflow.ActivityOptions{
		StartToCloseTimeout: config.StartToCloseTimeout,
		RetryPolicy:         GetRetryPolicy(config.RetryPolicy),
	}
}

// GetStandardActivityOptions returns standard activity options
func GetStandardActivityOptions() workflow.ActivityOptions {
	return GetActivityOptions(ActivityOptionsConfig{RetryPolicy: StandardRetry})
}

// GetCriticalActivityOptions returns activity options for steps after money has moved
func GetCriticalActivityOptions() workflow.ActivityOptions {
	return GetActivityOptions(ActivityOptionsConfig{RetryPolicy: AggressiveRetry})
}

// GetSingleAttemptActivityOptions returns activity options that never retry
func GetSingleAttemptActivityOptions() workflow.ActivityOptions {
	return GetActivityOptions(ActivityOptionsConfig{RetryPolicy: NoRetry})
}

// GetUntilDoneActivityOptions returns activity options that retry until the step succeeds
func GetUntilDoneActivityOptions() workflow.ActivityOptions {
	return GetActivityOptions(ActivityOptionsConfig{RetryPolicy: UntilDoneRetry})
}
