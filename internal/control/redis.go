// Package control implements the Redis pub/sub remote-control channel
// (SPEC_FULL.md §4.11): fleet operators publish short pipe-delimited
// commands that the broker applies to its local registry. Grounded on
// the teacher's redis_cmds.go, restated against the registry's
// publisher/subscriber API and generalized from the teacher's two
// commands (kill-session, close-stream) to kill-publisher and
// drop-subscribers, since this core has no stream-id concept to
// disambiguate a close-stream from a kill.
package control

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nullkey-live/rtmpbroker/internal/config"
	"github.com/nullkey-live/rtmpbroker/internal/connhandle"
	"github.com/nullkey-live/rtmpbroker/internal/logging"
	"github.com/nullkey-live/rtmpbroker/internal/registry"
)

// Listener subscribes to a Redis channel and applies the commands it
// receives to a registry.
type Listener struct {
	cfg *config.Config
	reg *registry.Registry
	log logging.Logger
}

// NewListener builds a Listener for cfg, or nil if Redis is disabled.
func NewListener(cfg *config.Config, reg *registry.Registry, log logging.Logger) *Listener {
	if !cfg.RedisUse {
		return nil
	}
	return &Listener{cfg: cfg, reg: reg, log: log}
}

// Run blocks, reconnecting on failure, until ctx is cancelled. Intended
// to be started with `go listener.Run(ctx)`.
func (l *Listener) Run(ctx context.Context) {
	opts := &redis.Options{
		Addr:     l.cfg.RedisHost + ":" + l.cfg.RedisPort,
		Password: l.cfg.RedisPassword,
	}
	if l.cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(opts)
	defer client.Close()

	l.log.Info("[REDIS] listening for commands on channel '" + l.cfg.RedisChannel + "'")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub := client.Subscribe(ctx, l.cfg.RedisChannel)
		l.receiveLoop(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (l *Listener) receiveLoop(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.apply(msg.Payload)
		}
	}
}

// apply parses and executes one command of the form "name|arg", never
// panicking on malformed input (a bad remote-control message must not
// take the process down).
func (l *Listener) apply(cmd string) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warning("recovered while applying redis command: " + cmd)
		}
	}()

	parts := strings.SplitN(cmd, "|", 2)
	if len(parts) != 2 {
		l.log.Warning("invalid remote control message: " + cmd)
		return
	}
	name, streamKey := parts[0], parts[1]

	switch name {
	case "kill-publisher":
		if pub := l.reg.LookupPublisher(streamKey); pub != nil {
			_ = pub.Close()
		}
	case "drop-subscribers":
		l.reg.IterateSubscribers(streamKey, func(h connhandle.Handle) {
			_ = h.Close()
		})
	default:
		l.log.Warning("unknown remote control command: " + name)
	}
}
