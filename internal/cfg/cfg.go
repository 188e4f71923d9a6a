package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/babyshower-web/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	Production        bool

	APIPrefix     string
	MaxBodyBytes  int64
	TrustedHops   int
	AddressHeader string
	MediaOrigins  string

	RateLimitWindow time.Duration
	RateLimitMax    int
	RateLimitPrefix string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisTimeout    time.Duration

	JWTSecret         string
	JWTSecretSSMParam string
	JWTIssuer         string
	JWTAudience       string

	NATSURL           string
	NATSSubjectPrefix string

	SiteDir         string
	GalleryBucket   string
	GalleryPrefix   string
	GalleryURLTTL   time.Duration
	GalleryMaxBytes int64
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	registerCommon(fs, &c.LogJSON, &c.LogLevel, &c.AdminPort)
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.Production, "production", true, "hide stack traces from API error responses")

	fs.StringVar(&c.APIPrefix, "api-prefix", "/api", "path prefix the JSON API is mounted under")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 64<<10, "max API request body size in bytes")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server (0 = ignore X-Forwarded-For)")
	fs.StringVar(&c.AddressHeader, "address-header", "", "header set by the edge proxy carrying the client address (e.g. CF-Connecting-IP)")
	fs.StringVar(&c.MediaOrigins, "media-origins", "", "comma separated https origins allowed for img-src/connect-src (gallery bucket)")

	fs.DurationVar(&c.RateLimitWindow, "ratelimit-window", 60*time.Second, "fixed rate limit window")
	fs.IntVar(&c.RateLimitMax, "ratelimit-max", 100, "requests allowed per identity per window")
	fs.StringVar(&c.RateLimitPrefix, "ratelimit-prefix", "ratelimit:", "counter key prefix in redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for shared counters (empty = in-process counters)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis AUTH password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis logical database")
	fs.DurationVar(&c.RedisTimeout, "redis-timeout", 200*time.Millisecond, "per-command redis timeout, the limiter fails open past it")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HMAC secret for bearer token verification")
	fs.StringVar(&c.JWTSecretSSMParam, "jwt-secret-ssm-param", "", "ssm SecureString parameter holding the bearer token secret")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", "", "required iss claim (empty = not checked)")
	fs.StringVar(&c.JWTAudience, "jwt-audience", "", "required aud claim (empty = not checked)")

	fs.StringVar(&c.NATSURL, "nats-url", "", "nats server url for notification events (empty = events are dropped)")
	fs.StringVar(&c.NATSSubjectPrefix, "nats-subject-prefix", "shower.events", "subject prefix for notification events")

	fs.StringVar(&c.SiteDir, "site-dir", "", "directory holding the built frontend (empty = embedded placeholder)")
	fs.StringVar(&c.GalleryBucket, "gallery-bucket", "", "s3 bucket for guest photo uploads (empty = uploads disabled)")
	fs.StringVar(&c.GalleryPrefix, "gallery-prefix", "gallery", "s3 key prefix for guest photo uploads")
	fs.DurationVar(&c.GalleryURLTTL, "gallery-url-ttl", 10*time.Minute, "lifetime of presigned upload urls")
	fs.Int64Var(&c.GalleryMaxBytes, "gallery-max-bytes", 15<<20, "max photo upload size in bytes")
}

// Notifier is the config for cmd/notifier.
type Notifier struct {
	LogJSON           bool
	LogLevel          string
	AdminPort         int
	NATSURL           string
	NATSSubjectPrefix string
	QueueGroup        string
	WebhookURL        string
	WebhookRate       float64
	WebhookTimeout    time.Duration
}

func RegisterNotifier(fs *flag.FlagSet, c *Notifier) {
	registerCommon(fs, &c.LogJSON, &c.LogLevel, &c.AdminPort)
	fs.StringVar(&c.NATSURL, "nats-url", "nats://127.0.0.1:4222", "nats server url")
	fs.StringVar(&c.NATSSubjectPrefix, "nats-subject-prefix", "shower.events", "subject prefix to subscribe under")
	fs.StringVar(&c.QueueGroup, "queue-group", "notifier", "nats queue group, one member handles each event")
	fs.StringVar(&c.WebhookURL, "webhook-url", "", "chat webhook url events are forwarded to")
	fs.Float64Var(&c.WebhookRate, "webhook-rate", 1, "max webhook posts per second")
	fs.DurationVar(&c.WebhookTimeout, "webhook-timeout", 5*time.Second, "webhook request timeout")
}

func registerCommon(fs *flag.FlagSet, logJSON *bool, logLevel *string, adminPort *int) {
	fs.BoolVar(logJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(logLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(adminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	errs = append(errs, validatePort("HTTP_PORT", c.HTTPPort)...)
	errs = append(errs, validatePort("ADMIN_PORT", c.AdminPort)...)
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	errs = append(errs, validateLevel("LOG_LEVEL", c.LogLevel)...)
	if c.StacktraceLevel != "" {
		errs = append(errs, validateLevel("STACKTRACE_LEVEL", c.StacktraceLevel)...)
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// API surface
	if !strings.HasPrefix(c.APIPrefix, "/") || c.APIPrefix == "/" || strings.HasSuffix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX must look like /api (got %q)", c.APIPrefix))
	}
	if c.MaxBodyBytes < 1 || c.MaxBodyBytes > 10<<20 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be 1..%d (got %d)", 10<<20, c.MaxBodyBytes))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 5 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..5 (got %d)", c.TrustedHops))
	}
	if c.AddressHeader != "" && strings.ContainsAny(c.AddressHeader, " \t:") {
		errs = append(errs, fmt.Errorf("ADDRESS_HEADER must be a bare header name (got %q)", c.AddressHeader))
	}
	for _, o := range SplitList(c.MediaOrigins) {
		if u, err := url.Parse(o); err != nil || u.Scheme != "https" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, fmt.Errorf("MEDIA_ORIGINS entries must be https origins (got %q)", o))
		}
	}

	// Rate limiting
	if c.RateLimitWindow < time.Second {
		errs = append(errs, fmt.Errorf("RATELIMIT_WINDOW must be at least 1s (got %s)", c.RateLimitWindow))
	}
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_MAX must be >= 1 (got %d)", c.RateLimitMax))
	}
	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errs = append(errs, fmt.Errorf("REDIS_DB must be 0..15 (got %d)", c.RedisDB))
		}
		if c.RedisTimeout <= 0 || c.RedisTimeout > 5*time.Second {
			errs = append(errs, fmt.Errorf("REDIS_TIMEOUT must be in (0, 5s] (got %s)", c.RedisTimeout))
		}
	}

	// Bearer tokens
	if c.JWTSecret != "" && c.JWTSecretSSMParam != "" {
		errs = append(errs, fmt.Errorf("set only one of JWT_SECRET and JWT_SECRET_SSM_PARAM"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 bytes"))
	}
	if c.JWTSecretSSMParam != "" && !strings.HasPrefix(c.JWTSecretSSMParam, "/") {
		errs = append(errs, fmt.Errorf("JWT_SECRET_SSM_PARAM must be a parameter path (got %q)", c.JWTSecretSSMParam))
	}

	// Notifications
	if c.NATSURL != "" {
		errs = append(errs, validateNATSURL(c.NATSURL)...)
	}
	errs = append(errs, validateSubject("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)...)

	// Gallery
	if c.GalleryBucket != "" {
		if c.GalleryPrefix == "" || strings.HasPrefix(c.GalleryPrefix, "/") {
			errs = append(errs, fmt.Errorf("GALLERY_PREFIX must be a relative key prefix (got %q)", c.GalleryPrefix))
		}
		if c.GalleryURLTTL < time.Minute || c.GalleryURLTTL > time.Hour {
			errs = append(errs, fmt.Errorf("GALLERY_URL_TTL must be 1m..1h (got %s)", c.GalleryURLTTL))
		}
		if c.GalleryMaxBytes < 1 {
			errs = append(errs, fmt.Errorf("GALLERY_MAX_BYTES must be >= 1 (got %d)", c.GalleryMaxBytes))
		}
	}

	return errors.Join(errs...)
}

// ValidateNotifier is Validate for cmd/notifier.
func ValidateNotifier(c Notifier) error {
	var errs []error
	errs = append(errs, validatePort("ADMIN_PORT", c.AdminPort)...)
	errs = append(errs, validateLevel("LOG_LEVEL", c.LogLevel)...)
	if c.NATSURL == "" {
		errs = append(errs, fmt.Errorf("NATS_URL is required"))
	} else {
		errs = append(errs, validateNATSURL(c.NATSURL)...)
	}
	errs = append(errs, validateSubject("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)...)
	if c.QueueGroup == "" || strings.ContainsAny(c.QueueGroup, " \t*>") {
		errs = append(errs, fmt.Errorf("QUEUE_GROUP must be a plain name (got %q)", c.QueueGroup))
	}
	if u, err := url.Parse(c.WebhookURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, fmt.Errorf("WEBHOOK_URL must be an http(s) URL"))
	}
	if c.WebhookRate <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RATE must be > 0 (got %g)", c.WebhookRate))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be > 0 (got %s)", c.WebhookTimeout))
	}
	return errors.Join(errs...)
}

// SplitList splits a comma separated flag value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validatePort(name string, p int) []error {
	if p < 1 || p > 65535 {
		return []error{fmt.Errorf("invalid %s %d (must be 1..65535)", name, p)}
	}
	return nil
}

func validateLevel(name, lvl string) []error {
	if _, err := log.ParseLevel(lvl); err != nil {
		return []error{fmt.Errorf("invalid %s %q: %w", name, lvl, err)}
	}
	return nil
}

func validateNATSURL(raw string) []error {
	var errs []error
	for _, s := range SplitList(raw) {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("NATS_URL entries must be URLs (got %q)", s))
			continue
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("NATS_URL scheme must be nats, tls, ws or wss (got %q)", u.Scheme))
		}
	}
	return errs
}

func validateSubject(name, s string) []error {
	if s == "" || strings.ContainsAny(s, " \t*>") || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return []error{fmt.Errorf("%s must be a literal subject like shower.events (got %q)", name, s)}
	}
	return nil
}
