package main

import (
	"context"
	"errors"
	"fmt"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type backend struct {
	redis      redis.UniversalClient
	principals goGate.PrincipalStore
	closers    []func()
}

// openBackend connects Redis and, when configured, the SQLite principal
// store. Dev mode runs an in-process Redis instead.
func openBackend(ctx context.Context, s settings, log zerolog.Logger) (*backend, error) {
	b := &backend{}
	addrs := s.Redis.Addrs
	if s.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		b.closers = append(b.closers, mr.Close)
		addrs = []string{mr.Addr()}
		log.Warn().Str("addr", mr.Addr()).Msg("dev mode: using in-process redis, state is lost on exit")
	}
	if len(addrs) == 0 {
		return nil, errors.New("redis.addrs is empty")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Username: s.Redis.Username,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	})
	b.redis = client
	b.closers = append(b.closers, func() { _ = client.Close() })

	switch s.Store.Principals {
	case "", "redis":
	case "sqlite":
		store, err := credential.OpenSQLite(ctx, s.Store.SQLitePath)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open principal store: %w", err)
		}
		b.principals = store
		b.closers = append(b.closers, func() { _ = store.Close() })
		log.Info().Str("path", s.Store.SQLitePath).Msg("principals stored in sqlite")
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store.principals %q", s.Store.Principals)
	}
	return b, nil
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func buildEngine(s settings, b *backend, log zerolog.Logger) (*goGate.Engine, error) {
	cfg, err := s.engineConfig()
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Lint() {
		log.Warn().Str("code", w.Code).Msg(w.Message)
	}

	builder := goGate.New().
		WithConfig(cfg).
		WithRedis(b.redis).
		WithLogger(log.With().Str("component", "engine").Logger())
	if b.principals != nil {
		builder = builder.WithPrincipalStore(b.principals)
	}
	if s.Audit.Enabled {
		builder = builder.WithAuditSink(goGate.NewZerologSink(log.With().Str("component", "audit").Logger()))
	}
	return builder.Build()
}
