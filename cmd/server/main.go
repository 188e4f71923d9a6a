package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/keithlinneman/babyshower-web/internal/cfg"
	"github.com/keithlinneman/babyshower-web/internal/eventapi"
	"github.com/keithlinneman/babyshower-web/internal/health"
	"github.com/keithlinneman/babyshower-web/internal/httpmw"
	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/opshttp"
	"github.com/keithlinneman/babyshower-web/internal/ratelimit"
	"github.com/keithlinneman/babyshower-web/internal/sitehandler"
	"github.com/keithlinneman/babyshower-web/internal/webassets"

	"github.com/keithlinneman/babyshower-web/internal/httpserver"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/metrics"
	"github.com/keithlinneman/babyshower-web/internal/otelx"
	"github.com/keithlinneman/babyshower-web/internal/prof"
	v "github.com/keithlinneman/babyshower-web/internal/version"
)

const component = "server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix SHOWER_
	cfg.FillFromEnv(flag.CommandLine, "SHOWER_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg
	ctx = log.WithContext(ctx, L)

	// secrets are left out on purpose
	L.Info(ctx, "initializing application",
		"version", vi.Short(),
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"production", conf.Production,
		"api_prefix", conf.APIPrefix,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"ratelimit_window", conf.RateLimitWindow.String(),
		"ratelimit_max", conf.RateLimitMax,
		"redis_addr", conf.RedisAddr,
		"trusted_hops", conf.TrustedHops,
		"address_header", conf.AddressHeader,
		"nats_url", conf.NATSURL,
		"site_dir", conf.SiteDir,
		"gallery_bucket", conf.GalleryBucket,
	)

	// Setup metrics
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// AWS is only needed for the ssm secret and gallery uploads
	var awsCfg aws.Config
	if conf.JWTSecretSSMParam != "" || conf.GalleryBucket != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}

	// identity: verified bearer token -> user, otherwise client address
	resolver, err := buildResolver(ctx, L, conf, awsCfg, m.IncIdentityVerifyFailure)
	if err != nil {
		L.Error(ctx, err, "failed to set up bearer token verification")
		os.Exit(1)
	}

	// counter store: redis when configured so all instances share one budget
	store, closeStore := buildStore(ctx, L, conf)
	defer closeStore()

	limiter, err := ratelimit.New(store, ratelimit.Config{
		Window:      conf.RateLimitWindow,
		MaxRequests: conf.RateLimitMax,
		KeyPrefix:   conf.RateLimitPrefix,
	},
		ratelimit.WithOnDenied(func(identity.Identity) {
			m.IncRateLimitDenied()
		}),
		// only log the first denial of each identity per window
		ratelimit.WithOnFirstDenied(func(id identity.Identity) {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit triggered", "identity.kind", string(id.Kind), "identity", id.Value)
		}),
		ratelimit.WithOnStoreError(func(error) {
			m.IncRateLimitStoreError()
		}),
		ratelimit.WithOnDecision(func(d ratelimit.Decision) {
			m.ObserveRateLimitDecision(d.Allowed, d.FailOpen)
		}),
	)
	if err != nil {
		L.Error(ctx, err, "invalid rate limit config")
		os.Exit(1)
	}

	publisher, nc := buildPublisher(ctx, L, conf)

	uploads, err := buildUploads(conf, awsCfg)
	if err != nil {
		L.Error(ctx, err, "failed to set up gallery presigner")
		os.Exit(1)
	}

	api := eventapi.NewAPI(eventapi.Options{
		Publisher:  publisher,
		Uploads:    uploads,
		Metrics:    m,
		Production: conf.Production,
	})

	site, siteCheck := buildSite(ctx, L, conf)
	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Site:       site,
		FallbackFS: webassets.FallbackFS(),
		SPAIndex:   "index.html",
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness is the shutdown gate plus a servable site. redis is left out:
	// the limiter fails open, so a redis outage must not drain instances
	readiness := health.All(
		health.Named("shutdown", gate.Probe()),
		siteCheck,
	)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:        L,
		Port:          conf.HTTPPort,
		UseRecoverMW:  true,
		OnPanic:       m.IncHttpPanic,
		MetricsMW:     m.Middleware,
		Health:        health.Fixed(true, ""),
		Readiness:     readiness,
		ClientIPOpts:  httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		CSP:           httpmw.BuildCSP(cfg.SplitList(conf.MediaOrigins)...),
		APIPrefix:     conf.APIPrefix,
		APIRoutes:     api.RegisterRoutes,
		APIMiddleware: []func(http.Handler) http.Handler{limiter.Middleware(resolver.Resolve)},
		MaxBodyBytes:  conf.MaxBodyBytes,
		SiteHandler:   siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener port")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin listener: metrics, health, version, pprof. requireNonPublicNetwork
	// rejects public peers in case the security group is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	drain(L, 30*time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}

	// flush buffered events after the last request is done
	if nc != nil {
		if err := nc.Drain(); err != nil {
			L.Error(context.Background(), err, "nats drain")
		}
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}
