package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nexus/internal/governance/budget"
	"nexus/internal/governance/dpia"
	govmetrics "nexus/internal/governance/metrics"
	"nexus/internal/governance/policy"
	"nexus/internal/guardian/apex"
	"nexus/internal/guardian/mars"
	guardmetrics "nexus/internal/guardian/metrics"
	"nexus/internal/guardian/sentinel"
	"nexus/internal/guardian/vigil"
	"nexus/internal/llm"
	"nexus/internal/pipeline"
	"nexus/internal/platform/config"
	"nexus/internal/platform/httpserver"
	"nexus/internal/platform/kafka"
	"nexus/internal/platform/logger"
	"nexus/internal/platform/metrics"
	nexusredis "nexus/internal/platform/redis"
	httptransport "nexus/internal/transport/http"
	"nexus/pkg/platform/audit"
	"nexus/pkg/platform/mirror"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
		},
	}
}

// app holds everything serve has to shut down.
type app struct {
	router  http.Handler
	service *pipeline.Service
	closers []func() error
}

// close releases the mirror and broker clients in reverse order of opening.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, a.router, cfg.LLM.Timeout+cfg.Server.ShutdownTimeout)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting nexus", "addr", cfg.Server.Addr, "mirror_enabled", cfg.MirrorEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		return errors.Join(srv.Shutdown(shutdownCtx), a.service.Close(shutdownCtx), a.close())
	})
	return g.Wait()
}

// build wires configuration into the pipeline and its HTTP surface. An
// unreachable mirror or broker is logged and skipped; the decision core runs
// without them. The policy file is read before any client is opened, and a
// later failure closes whatever was opened.
func build(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	var rules *policy.File
	if cfg.PolicyFile != "" {
		if rules, err = policy.LoadFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	guardM := guardmetrics.New(reg)
	govM := govmetrics.New(reg)
	mirrorM := mirror.NewMetrics(reg)

	var primary mirror.Store
	rc, err := nexusredis.New(ctx, cfg.Redis)
	if err != nil {
		log.WarnContext(ctx, "durable mirror unavailable, running in memory only", "error", err)
	}
	if rc != nil {
		primary = nexusredis.NewMirror(rc.Client)
		a.closers = append(a.closers, rc.Close)
	}

	var sinks []mirror.ListAppender
	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		log.WarnContext(ctx, "audit topic unavailable", "error", err)
	}
	if kc != nil {
		sinks = append(sinks, kafka.NewAuditSink(kc, cfg.Kafka.AuditTopic))
		a.closers = append(a.closers, func() error {
			kc.Close()
			return nil
		})
	}

	newWriter := func(store mirror.Store) *mirror.Writer {
		if store == nil {
			return nil
		}
		return mirror.NewWriter(store,
			mirror.WithLogger(log),
			mirror.WithMetrics(mirrorM),
			mirror.WithQueueSize(cfg.Redis.MirrorQueueSize),
		)
	}

	var chainStore mirror.Store
	if primary != nil || len(sinks) > 0 {
		chainStore = mirror.Tee(primary, sinks...)
	}
	chain := audit.NewChain(
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithMirror(newWriter(chainStore)),
	)

	ledger := budget.NewLedger(cfg.Privacy.EpsilonBudget,
		budget.WithLogger(log),
		budget.WithMetrics(govM),
		budget.WithMirror(newWriter(primary)),
	)

	policyOpts := []policy.Option{policy.WithLogger(log), policy.WithMetrics(govM)}
	if rules != nil {
		policyOpts = append(policyOpts, rules.Options()...)
	}

	ollama := llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.SmallModel, cfg.LLM.Timeout,
		llm.WithEmbedModel(cfg.LLM.EmbedModel))

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(metrics.New(reg)),
		pipeline.WithEpsilonPerRequest(cfg.Privacy.EpsilonPerRequest),
	}
	if rc != nil && cfg.Redis.CacheTTL > 0 {
		cacheStore := nexusredis.NewMirror(rc.Client, nexusredis.WithKeyTTL(cfg.Redis.CacheTTL))
		opts = append(opts, pipeline.WithResponseCache(pipeline.NewResponseCache(newWriter(cacheStore), 0)))
	}

	detectors := sentinel.NewDefault(ollama, ollama,
		cfg.Guardian.SentinelConsensusThreshold,
		cfg.Guardian.SentinelSimilarityThreshold,
		sentinel.WithLogger(log),
		sentinel.WithMetrics(guardM),
	)
	router := apex.NewRouter(cfg.LLM.SmallModel, cfg.LLM.LargeModel, cfg.Guardian.ApexConfidenceThreshold, guardM)
	assessor := dpia.NewAssessor(ledger, chain,
		dpia.WithLogger(log),
		dpia.WithMetrics(govM),
		dpia.WithBudgetNoise(cfg.Privacy.AuditNoiseEpsilon, nil),
	)
	tools := vigil.New(
		vigil.WithRateLimit(cfg.Guardian.VigilRateLimit, cfg.Guardian.VigilWindow),
		vigil.WithLogger(log),
		vigil.WithMetrics(guardM),
	)

	svc, err := pipeline.New(pipeline.Components{
		Sentinel:  detectors,
		Risk:      mars.New(ollama, mars.WithLogger(log), mars.WithMetrics(guardM)),
		Policy:    policy.NewEngine(policyOpts...),
		Router:    router,
		Cost:      apex.NewCostBudget(cfg.Guardian.ApexCostBudget),
		Ledger:    ledger,
		Assessor:  assessor,
		Vigil:     tools,
		Chain:     chain,
		Generator: ollama,
	}, opts...)
	if err != nil {
		return nil, err
	}
	a.service = svc

	handlerOpts := []httptransport.Option{
		httptransport.WithLogger(log),
		httptransport.WithHealthCheck("llm", ollama.Health),
	}
	if rc != nil {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck("mirror", rc.Health))
	}
	a.router = httptransport.NewRouter(httptransport.NewHandler(svc, handlerOpts...), reg, log)
	return a, nil
}
