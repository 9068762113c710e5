package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/httpapi"
	"github.com/MrEthical07/goGate/internal/simulator"
	otelexport "github.com/MrEthical07/goGate/metrics/export/otel"
	promexport "github.com/MrEthical07/goGate/metrics/export/prometheus"
	"github.com/MrEthical07/goGate/notify"
	"github.com/MrEthical07/goGate/presence"
	"github.com/MrEthical07/goGate/transport/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), a.settings, a.log)
		},
	}
}

func serve(ctx context.Context, s settings, log zerolog.Logger) error {
	b, err := openBackend(ctx, s, log)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := buildEngine(s, b, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.Info().
		Str("signing", report.SigningAlgorithm).
		Str("validation_mode", report.ValidationMode).
		Bool("throttle", report.ThrottleActive).
		Bool("audit", report.AuditActive).
		Strs("warnings", report.Warnings).
		Msg("security posture")

	admins := s.HTTP.AdminPrincipals
	if s.Dev {
		id, err := seedDevAdmin(ctx, engine, s, log)
		if err != nil {
			return err
		}
		if id != "" {
			admins = append(admins, id)
		}
	}

	registry := presence.NewRegistry(presence.WithLogger(log.With().Str("component", "presence").Logger()))
	dispatcher := notify.NewDispatcher(registry, notify.WithLogger(log.With().Str("component", "notify").Logger()))
	notifier := notify.Local(dispatcher)
	var relay *notify.Relay
	if s.Notify.Relay {
		relay, err = notify.NewRelay(b.redis, dispatcher, notify.RelayConfig{
			Channel: s.Notify.Channel,
			Logger:  log.With().Str("component", "relay").Logger(),
		})
		if err != nil {
			return err
		}
		notifier = relay
	}

	wsServer, err := ws.NewServer(registry, ws.Config{
		AllowedOrigins: s.HTTP.AllowedOrigins,
		SendBuffer:     s.WS.SendBuffer,
		InboundRate:    rate.Limit(s.WS.InboundRate),
		InboundBurst:   s.WS.InboundBurst,
		Logger:         log.With().Str("component", "ws").Logger(),
	})
	if err != nil {
		return err
	}

	var metrics http.Handler
	if s.Metrics.Enabled {
		reg, err := promexport.NewRegistry(engine, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gogate_presence_connections",
			Help: "Open WebSocket connections registered for presence.",
		}, func() float64 { return float64(registry.Count()) }))
		if err != nil {
			return err
		}
		metrics = promexport.Handler(reg)
	}

	hashKey, blockKey, err := s.cookieKeys()
	if err != nil {
		return err
	}
	api, err := httpapi.New(httpapi.Config{
		CookieHashKey:     hashKey,
		CookieBlockKey:    blockKey,
		SecureCookies:     s.HTTP.SecureCookies && !s.Dev,
		AllowedOrigins:    s.HTTP.AllowedOrigins,
		AdminPrincipals:   admins,
		TrustProxyHeaders: s.HTTP.TrustProxyHeaders,
	}, httpapi.Deps{
		Engine:   engine,
		Registry: registry,
		Notifier: notifier,
		WS:       wsServer,
		Metrics:  metrics,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	var sim *simulator.Simulator
	if s.Simulator.Enabled {
		sim, err = simulator.New(notifier, simulator.Config{
			Interval: s.Simulator.Interval,
			Logger:   log.With().Str("component", "simulator").Logger(),
		})
		if err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", s.Listen).Msg("http server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		wsServer.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepSessions(gctx, engine, s.Session.SweepInterval)
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if sim != nil {
		g.Go(func() error { return sim.Run(gctx) })
	}
	if s.Metrics.OTel {
		g.Go(func() error { return reportOTel(gctx, engine, log) })
	}

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}

func sweepSessions(ctx context.Context, engine *goGate.Engine, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by the engine; the next tick retries.
			_, _ = engine.SweepExpiredSessions(ctx)
		}
	}
}

// reportOTel feeds the engine metrics through the OpenTelemetry SDK and logs
// a collection summary every minute.
func reportOTel(ctx context.Context, engine *goGate.Engine, log zerolog.Logger) error {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exp, err := otelexport.NewExporter(provider.Meter("github.com/MrEthical07/goGate"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = exp.Close() }()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var rm metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &rm); err != nil {
				log.Error().Err(err).Msg("otel collect failed")
				continue
			}
			n := 0
			for _, sm := range rm.ScopeMetrics {
				n += len(sm.Metrics)
			}
			log.Debug().Int("instruments", n).Msg("otel metrics collected")
		}
	}
}

func seedDevAdmin(ctx context.Context, engine *goGate.Engine, s settings, log zerolog.Logger) (string, error) {
	res, err := engine.ProvisionPrincipal(ctx, goGate.ProvisionRequest{
		Identifier: s.DevAdmin.Identifier,
		Label:      "Administrator",
		Secret:     s.DevAdmin.Secret,
		PIN:        s.DevAdmin.PIN,
	})
	if errors.Is(err, goGate.ErrPrincipalExists) {
		log.Warn().Str("identifier", s.DevAdmin.Identifier).Msg("dev mode: admin principal already exists, not seeded")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	log.Warn().
		Str("identifier", res.Identifier).
		Str("principal_id", res.PrincipalID).
		Msg("dev mode: seeded admin principal with the configured secret and PIN")
	return res.PrincipalID, nil
}
