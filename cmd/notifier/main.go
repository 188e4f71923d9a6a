// Command notifier consumes shower events from NATS and forwards them to the
// hosts' chat webhook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/babyshower-web/internal/cfg"
	"github.com/keithlinneman/babyshower-web/internal/health"
	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/metrics"
	"github.com/keithlinneman/babyshower-web/internal/notify"
	"github.com/keithlinneman/babyshower-web/internal/opshttp"
	v "github.com/keithlinneman/babyshower-web/internal/version"
)

const component = "notifier"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.Notifier
	var showVersion bool
	cfg.RegisterNotifier(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s-%s %s\n", v.AppName, component, vi.Short())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "SHOWER_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.ValidateNotifier(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	L, err := log.New(log.Options{
		App:        v.AppName,
		Component:  component,
		Version:    vi.Version,
		Commit:     vi.Commit,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
		// webhook urls embed their auth token
		RedactKeys: []string{"webhook_url"},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing notifier",
		"version", vi.Short(),
		"admin_port", conf.AdminPort,
		"nats_url", conf.NATSURL,
		"subject_prefix", conf.NATSSubjectPrefix,
		"queue_group", conf.QueueGroup,
		"webhook_url", conf.WebhookURL,
		"webhook_rate", conf.WebhookRate,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, vi)

	nc, err := notify.Connect(notify.ConnectOptions{
		URL:    conf.NATSURL,
		Name:   v.AppName + "-" + component,
		Logger: L,
	})
	if err != nil {
		L.Error(ctx, err, "nats connect failed")
		os.Exit(1)
	}

	webhook := notify.NewWebhookNotifier(notify.WebhookOptions{
		URL:         conf.WebhookURL,
		Timeout:     conf.WebhookTimeout,
		PerSecond:   conf.WebhookRate,
		OnDelivered: m.IncNotificationDelivered,
	})

	sub, err := notify.Subscribe(nc, conf.NATSSubjectPrefix, conf.QueueGroup, L, webhook.Handle)
	if err != nil {
		L.Error(ctx, err, "subscribe failed")
		nc.Close()
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		health.Named("shutdown", gate.Probe()),
		health.Named("nats", health.CheckFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("not connected, status=%s", nc.Status())
			}
			return nil
		})),
	)

	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")

	// let in-flight webhook posts finish before the connection closes
	if err := sub.Drain(); err != nil {
		L.Error(context.Background(), err, "subscription drain")
	}
	if err := nc.Drain(); err != nil {
		L.Error(context.Background(), err, "nats drain")
	}
	deadline := time.Now().Add(10 * time.Second)
	for !nc.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
}
