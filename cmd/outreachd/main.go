// Command outreachd runs the outreach engine worker: the enqueue/drain
// loop, the NBA refresh loop, and the read-only reporting API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/solarcommand/outreach/pkg/api"
	"github.com/solarcommand/outreach/pkg/audit"
	"github.com/solarcommand/outreach/pkg/compliance"
	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/dispatch"
	"github.com/solarcommand/outreach/pkg/escalation"
	"github.com/solarcommand/outreach/pkg/ledger"
	"github.com/solarcommand/outreach/pkg/llm"
	"github.com/solarcommand/outreach/pkg/nba"
	"github.com/solarcommand/outreach/pkg/observability"
	"github.com/solarcommand/outreach/pkg/provider"
)

// enqueueStatuses are the funnel positions the outreach loop actively
// works. Protected and terminal leads never enter the loop; the gate
// would deny them anyway, but skipping the scan keeps cycles cheap.
var enqueueStatuses = []contracts.LeadStatus{
	contracts.StatusIngested,
	contracts.StatusContacting,
	contracts.StatusNurturing,
}

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("outreachd exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	profile, err := config.LoadProfile(cfg.ProfileDir, cfg.Jurisdiction)
	if err != nil {
		log.Warn().Err(err).Str("jurisdiction", cfg.Jurisdiction).Msg("profile load failed, using defaults")
		profile = config.DefaultProfile()
	}

	store, err := ledger.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.DB().Close() }()

	decisions, err := nba.NewStore(store.DB())
	if err != nil {
		return err
	}

	trail := audit.NewTrail()
	sink, err := audit.NewSQLiteSink(store.DB())
	if err != nil {
		return err
	}
	trail.AddSink(sink.Write)
	recorder := audit.NewRecorder(trail, log)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "outreachd",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	gate := compliance.NewGate(store, profile)
	policy := escalation.NewPolicy(profile)

	var channels provider.ChannelProvider
	if cfg.ProviderBaseURL != "" {
		channels = provider.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAuthToken, cfg.ProviderFrom)
	} else {
		log.Warn().Msg("no channel provider configured, using simulation")
		channels = provider.NewSimulatedProvider(time.Now().UnixNano())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	lock := dispatch.NewDrainLock(rdb, "lock:outreach_drain", cfg.LockLease)

	dispatcher := dispatch.New(store, gate, policy, channels, lock, recorder, dispatch.Options{
		BatchSize: cfg.DrainBatchSize,
		LockLease: cfg.LockLease,
	}, log)

	if cfg.PostgresURL != "" {
		outbox, err := ledger.OpenPostgresOutbox(cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer func() { _ = outbox.Close() }()
		dispatcher.WithOutbox(outbox)
	}

	client := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel,
		llm.WithTimeout(cfg.AITimeout))
	if !client.Enabled() {
		log.Warn().Msg("reasoning provider not configured, decisions will use deterministic fallback")
	}
	engine := nba.NewEngine(store, gate, client, decisions, profile, cfg.PromptVersion, recorder, log)

	server := api.NewServer(store, engine, trail, log)
	if cfg.APISigningKey == "" {
		log.Warn().Msg("API_SIGNING_KEY empty, reporting API runs unauthenticated")
	}

	optOuts := compliance.NewOptOutProcessor(store, recorder)
	inbound := compliance.NewInboundSMSHandler(store, optOuts, log)

	// The provider webhook authenticates differently than the reporting
	// API, so it mounts outside the JWT middleware.
	root := http.NewServeMux()
	root.Handle("/webhooks/sms", inbound)
	root.Handle("/", server.Router([]byte(cfg.APISigningKey)))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("reporting API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
		}
	}()

	go outreachLoop(ctx, cfg, store, dispatcher, obs, log)
	go decisionLoop(ctx, cfg, store, engine, log)

	log.Info().
		Str("jurisdiction", cfg.Jurisdiction).
		Dur("drain_interval", cfg.DrainInterval).
		Msg("outreachd started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// outreachLoop runs one enqueue pass and one drain cycle per tick.
func outreachLoop(ctx context.Context, cfg *config.Config, store *ledger.SQLiteStore,
	dispatcher *dispatch.Dispatcher, obs *observability.Provider, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, status := range enqueueStatuses {
			leads, err := store.LeadsByStatus(ctx, status, cfg.DrainBatchSize)
			if err != nil {
				log.Error().Err(err).Str("status", string(status)).Msg("lead scan failed")
				continue
			}
			for _, lead := range leads {
				_, denial, err := dispatcher.EnqueueAttempt(ctx, lead.ID)
				switch {
				case denial != nil:
					obs.RecordDenial(ctx, denial.Reason)
				case errors.Is(err, dispatch.ErrDeferred):
					// Outside every contact window; next tick retries.
				case err != nil:
					log.Error().Err(err).Str("lead_id", lead.ID).Msg("enqueue failed")
				}
			}
		}

		start := time.Now()
		stats, err := dispatcher.Drain(ctx)
		if err != nil {
			log.Error().Err(err).Msg("drain cycle failed")
			continue
		}
		if !stats.Skipped {
			obs.RecordDrain(ctx, time.Since(start), stats.Resolved, stats.Failed)
		}
	}
}

// decisionLoop refreshes NBA decisions for actively worked leads.
func decisionLoop(ctx context.Context, cfg *config.Config, store *ledger.SQLiteStore,
	engine *nba.Engine, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.NBAInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, status := range enqueueStatuses {
			leads, err := store.LeadsByStatus(ctx, status, cfg.DrainBatchSize)
			if err != nil {
				log.Error().Err(err).Str("status", string(status)).Msg("lead scan failed")
				continue
			}
			for _, lead := range leads {
				existing, err := engine.Latest(ctx, lead.ID)
				if err != nil {
					log.Error().Err(err).Str("lead_id", lead.ID).Msg("decision lookup failed")
					continue
				}
				if existing != nil {
					continue
				}
				if _, err := engine.Compute(ctx, lead.ID); err != nil {
					log.Error().Err(err).Str("lead_id", lead.ID).Msg("decision compute failed")
				}
			}
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
