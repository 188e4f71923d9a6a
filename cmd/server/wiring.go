package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/nats-io/nats.go"

	"github.com/keithlinneman/babyshower-web/internal/cfg"
	"github.com/keithlinneman/babyshower-web/internal/eventapi"
	"github.com/keithlinneman/babyshower-web/internal/gallery"
	"github.com/keithlinneman/babyshower-web/internal/health"
	"github.com/keithlinneman/babyshower-web/internal/identity"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/ratelimit"
	"github.com/keithlinneman/babyshower-web/internal/sitehandler"
	v "github.com/keithlinneman/babyshower-web/internal/version"
	"github.com/keithlinneman/babyshower-web/internal/webassets"
)

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", conf.LogLevel, err)
	}
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	return log.New(log.Options{
		App:               v.AppName,
		Component:         component,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

// buildResolver wires bearer verification when a secret is configured.
// Without one every caller is identified by address.
func buildResolver(ctx context.Context, L log.Logger, conf cfg.App, awsCfg aws.Config, onVerifyFailure func()) (*identity.Resolver, error) {
	verifier, err := buildVerifier(ctx, conf, awsCfg)
	if err != nil {
		return nil, err
	}
	opts := identity.ResolverOptions{
		AddressHeader:   conf.AddressHeader,
		OnVerifyFailure: func(error) { onVerifyFailure() },
	}
	if verifier != nil {
		opts.Verifier = verifier
	} else {
		L.Warn(ctx, "no jwt secret configured, every caller is identified by address")
	}
	return identity.NewResolver(opts), nil
}

// buildVerifier returns nil when no secret is configured.
func buildVerifier(ctx context.Context, conf cfg.App, awsCfg aws.Config) (*identity.JWTVerifier, error) {
	secret := []byte(conf.JWTSecret)
	if conf.JWTSecretSSMParam != "" {
		c, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := identity.LoadSecretFromSSM(c, ssm.NewFromConfig(awsCfg), conf.JWTSecretSSMParam)
		if err != nil {
			return nil, err
		}
		secret = s
	}
	if len(secret) == 0 {
		return nil, nil
	}
	return identity.NewJWTVerifier(identity.JWTOptions{
		Secret:   secret,
		Issuer:   conf.JWTIssuer,
		Audience: conf.JWTAudience,
		Leeway:   30 * time.Second,
	})
}

// buildStore picks the counter store and returns its cleanup.
func buildStore(ctx context.Context, L log.Logger, conf cfg.App) (ratelimit.Store, func()) {
	if conf.RedisAddr == "" {
		L.Info(ctx, "no redis configured, rate limit counters are per instance")
		return ratelimit.NewMemoryStore(ctx, conf.RateLimitWindow), func() {}
	}
	rs := ratelimit.NewRedisStore(ratelimit.NewRedisClient(ratelimit.RedisOptions{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
		Timeout:  conf.RedisTimeout,
	}))
	// unreachable redis is not fatal, the limiter fails open until it is back
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		L.Error(ctx, err, "redis not reachable at startup, rate limiting fails open until it is", "redis_addr", conf.RedisAddr)
	}
	return rs, func() { _ = rs.Close() }
}

// buildPublisher connects to nats when configured. A nil conn means events
// go to the nop publisher.
func buildPublisher(ctx context.Context, L log.Logger, conf cfg.App) (notify.Publisher, *nats.Conn) {
	if conf.NATSURL == "" {
		L.Info(ctx, "no nats url configured, notifications disabled")
		return notify.NopPublisher{}, nil
	}
	nc, err := notify.Connect(notify.ConnectOptions{URL: conf.NATSURL, Name: v.AppName, Logger: L})
	if err != nil {
		// guests can still RSVP, the hosts just won't be pinged
		L.Error(ctx, err, "nats connect failed, notifications disabled", "nats_url", conf.NATSURL)
		return notify.NopPublisher{}, nil
	}
	return notify.NewNATSPublisher(nc, conf.NATSSubjectPrefix), nc
}

// buildUploads returns a nil interface without a bucket so the gallery route
// is never registered.
func buildUploads(conf cfg.App, awsCfg aws.Config) (eventapi.Uploads, error) {
	if conf.GalleryBucket == "" {
		return nil, nil
	}
	p, err := gallery.NewPresigner(gallery.Options{
		Client:   s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
		Bucket:   conf.GalleryBucket,
		Prefix:   conf.GalleryPrefix,
		TTL:      conf.GalleryURLTTL,
		MaxBytes: conf.GalleryMaxBytes,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// buildSite serves the built frontend from disk, or the embedded placeholder
// when no directory is configured.
func buildSite(ctx context.Context, L log.Logger, conf cfg.App) (sitehandler.SiteProvider, health.Probe) {
	if conf.SiteDir != "" {
		dir := sitehandler.NewDirSite(conf.SiteDir)
		return dir, dir
	}
	if seed, ok := webassets.SeedSiteFS(); ok {
		L.Info(ctx, "no site directory configured, serving embedded placeholder")
		return sitehandler.StaticSite{FS: seed}, health.Fixed(true, "")
	}
	return sitehandler.StaticSite{}, health.Fixed(true, "")
}

// drain waits out the load balancer health checks. A second signal cuts it short.
func drain(L log.Logger, d time.Duration) {
	L.Info(context.Background(), "shutdown gate closed, waiting for load balancer to drain", "drain", d.String())

	again := make(chan os.Signal, 1)
	signal.Notify(again, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(again)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(context.Background(), "drain period complete")
	case <-again:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
