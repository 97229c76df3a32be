package connectivity

import (
	"context"
	"time"

	"docsync/internal/config"
	"docsync/internal/repository"
	"docsync/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// PingFunc checks reachability of the remote store.
type PingFunc func(ctx context.Context) error

// RedisPing pings client.
func RedisPing(client *redis.Client) PingFunc {
	return func(ctx context.Context) error {
		return repository.Ping(ctx, client)
	}
}

// ProbeSource reports connectivity by pinging the remote store. While online
// it pings every interval; after a failure it backs off according to policy
// until a ping succeeds again.
type ProbeSource struct {
	ping     PingFunc
	interval time.Duration
	timeout  time.Duration
	policy   worker.RetryPolicy
	logger   *zerolog.Logger
}

func NewProbeSource(ping PingFunc, cfg config.ConnectivityConfig, logger *zerolog.Logger) *ProbeSource {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "probe").Logger()

	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &ProbeSource{
		ping:     ping,
		interval: interval,
		timeout:  timeout,
		policy:   worker.PolicyFromConfig(cfg.Backoff),
		logger:   &l,
	}
}

func (p *ProbeSource) Run(ctx context.Context, report func(online bool)) {
	failures := 0
	for {
		err := p.probe(ctx)
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		if err == nil {
			if failures > 0 {
				p.logger.Info().Int("failed_probes", failures).Msg("remote store reachable again")
			}
			failures = 0
			report(true)
			wait = p.interval
		} else {
			failures++
			if failures == 1 {
				p.logger.Warn().Err(err).Msg("remote store unreachable")
			} else {
				p.logger.Debug().Err(err).Int("attempt", failures).Msg("probe failed")
			}
			report(false)
			wait = p.policy.NextDelay(failures)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *ProbeSource) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.ping(ctx)
}
