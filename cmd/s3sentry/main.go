// Command s3sentry is the proxy's process entrypoint: parses CLI flags,
// loads configuration, wires every component, and serves until signaled.
// The flag-based CLI and exit-code convention are grounded on
// ais/daemon.go's initDaemon, re-expressed with the standard flag package
// in place of a custom cliFlags/rungroup pair, since this repository has
// a single runner (the HTTP server) rather than aistore's proxy/target
// runner set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teris-io/shortid"
	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/admin"
	"github.com/s3sentry/s3sentry/internal/admission"
	"github.com/s3sentry/s3sentry/internal/audit"
	"github.com/s3sentry/s3sentry/internal/auth"
	"github.com/s3sentry/s3sentry/internal/cache"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/logging"
	"github.com/s3sentry/s3sentry/internal/metrics"
	"github.com/s3sentry/s3sentry/internal/pipeline"
	"github.com/s3sentry/s3sentry/internal/prewarm"
	"github.com/s3sentry/s3sentry/internal/ratelimit"
	"github.com/s3sentry/s3sentry/internal/replica"
	"github.com/s3sentry/s3sentry/internal/server"
)

// version/buildTime are set via -ldflags at release build time; left at
// their zero value in development builds.
var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `
   Usage:
        s3sentry -config=/path/to/config.yaml [-log_level=info]`

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		logLevel   = flag.String("log_level", "", "operational log level (info when unset)")
		showHelp   = flag.Bool("h", false, "show usage and exit")
	)
	flag.Parse()

	if *showHelp || *configPath == "" {
		fmt.Fprintln(os.Stderr, usage)
		if *configPath == "" {
			fmt.Fprintln(os.Stderr, "\nmissing required -config flag")
		}
		return 1
	}

	snap, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "s3sentry: %v\n", err)
		return 1
	}

	level := *logLevel
	if level == "" {
		level = "info"
	}
	log, err := logging.New(logging.Config{Level: level, Production: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "s3sentry: failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	owner := config.NewOwner()
	owner.Install(snap)

	met := metrics.New()

	replicaOwner := replica.NewOwner()
	replicaOwner.Install(replica.BuildRegistry(owner.Current(), replica.DefaultBreakerConfig))

	var diskCache *cache.DiskCache
	if snap.Cache != nil && snap.Cache.Enabled {
		backend := cache.NewDefaultBackend(256, log)
		diskCache, err = cache.Open(cache.Config{
			RootDir:      snap.Cache.Dir,
			MaxSizeBytes: snap.Cache.MaxSizeBytes,
			DefaultTTL:   snap.Cache.DefaultTTL,
		}, backend)
		if err != nil {
			fmt.Fprintf(os.Stderr, "s3sentry: failed to open disk cache: %v\n", err)
			return 1
		}
		report, err := diskCache.ValidateAndRepair()
		if err != nil {
			log.Warn("cache recovery scan failed", zap.Error(err))
		} else {
			log.Info("cache recovery complete",
				zap.Int("recovered", report.Recovered),
				zap.Int("already_indexed", report.AlreadyIndexed),
				zap.Int("tmp_files_removed", report.TmpFilesRemoved),
				zap.Int("errors", len(report.Errors)))
		}
	}

	var auditLogger *audit.Logger
	if snap.Audit != nil && snap.Audit.Enabled {
		sink, err := audit.NewSink(snap.Audit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "s3sentry: failed to construct audit sink: %v\n", err)
			return 1
		}
		auditLogger = audit.NewLogger(snap.Audit, sink, log.Named("audit"))
		defer auditLogger.Close()
	}

	limiters := ratelimit.NewLimiters(snap.RateLimits.GlobalRPS, snap.RateLimits.PerIPRPS)
	resourceMonitor := admission.CompositeMonitor{Monitors: []admission.ResourceMonitor{
		admission.NewMemoryHeadroomMonitor(0.05),
	}}
	controller := admission.New(int64(snap.ServerLimits.MaxConcurrentRequests), resourceMonitor, admission.SecurityLimits{
		MaxURILength:  snap.ServerLimits.MaxURILength,
		MaxHeaderSize: snap.ServerLimits.MaxHeaderSize,
		MaxBodySize:   snap.ServerLimits.MaxBodySize,
	}, limiters)

	verifier := auth.NewVerifier(auth.NewJWKSCache())
	authzHook := auth.NewAuthorizationHook()

	sid, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "s3sentry: failed to init id generator: %v\n", err)
		return 1
	}
	prewarmMgr := prewarm.NewManager(owner, diskCache, log.Named("prewarm"), func() string {
		id, err := sid.Generate()
		if err != nil {
			return fmt.Sprintf("prewarm-%d", time.Now().UnixNano())
		}
		return id
	})

	reloadFn := func() error {
		newSnap, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		owner.Install(newSnap)
		replicaOwner.Install(replica.BuildRegistry(owner.Current(), replica.DefaultBreakerConfig))
		log.Info("configuration reloaded", zap.Uint64("generation", owner.Current().Generation))
		return nil
	}

	adminHandler := &admin.Handler{
		ConfigOwner: owner,
		Verifier:    verifier,
		Prewarm:     prewarmMgr,
		ReloadFn:    reloadFn,
		Log:         log.Named("admin"),
	}

	handler := &pipeline.Handler{
		ConfigOwner: owner,
		Replicas:    replicaOwner,
		Admission:   controller,
		Verifier:    verifier,
		AuthzHook:   authzHook,
		Cache:       diskCache,
		Metrics:     met,
		Audit:       auditLogger,
		Log:         log,
		StartedAt:   time.Now(),
		Version:     version,
		Admin:       adminHandler,
	}

	listenAddr := snap.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8443"
	}
	srv := server.New(server.DefaultConfig(listenAddr), handler, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("s3sentry starting", zap.String("version", version), zap.String("build_time", buildTime))
	if err := srv.Run(ctx); err != nil {
		log.Error("server exited with error", zap.Error(err))
		return 2
	}

	log.Info("s3sentry stopped cleanly")
	return 0
}
