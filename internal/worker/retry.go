package worker

import (
	"context"
	"time"

	"evoswarm/internal/evo"
)

// DialPolicy controls how often a worker retries reaching a master that is
// not listening yet. Only connection attempts are retried; once connected,
// a session error ends the worker.
type DialPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxAttempts of zero retries until the context ends.
	MaxAttempts int
	OnRetry     func(attempt int, err error, wait time.Duration)
}

func defaultDialPolicy() DialPolicy {
	return DialPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

func normalizeDialPolicy(policy DialPolicy) DialPolicy {
	def := defaultDialPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	return policy
}

// DialWithRetry is Dial with exponential backoff between failed connection
// attempts.
func DialWithRetry[T evo.Evolvable[T]](ctx context.Context, addr string, agent *Agent[T], policy DialPolicy) error {
	policy = normalizeDialPolicy(policy)
	backoff := policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		conn, err := connect(ctx, addr)
		if err == nil {
			return agent.serveConn(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, backoff)
		}
		agent.logger.Debug("master unreachable, retrying", "attempt", attempt, "wait", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * policy.BackoffFactor)
		if next > policy.MaxBackoff {
			next = policy.MaxBackoff
		}
		backoff = next
	}
}
