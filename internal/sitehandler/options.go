package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/babyshower-web/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// SiteProvider returns the built frontend, ok=false while none is available.
type SiteProvider interface {
	Site() (fs.FS, bool)
}

type Options struct {
	Logger log.Logger
	// Active site bundle
	Site SiteProvider
	// fallback FS (maintenance page, maybe fallback 404)
	FallbackFS fs.FS

	// file names inside the FS roots (relative path)
	// - MaintenanceFile and Fallback404File are read from FallbackFS
	// - Site404File is read from the active site FS
	MaintenanceFile string // default: "maintenance.html"
	Fallback404File string // default: "404.html"
	Site404File     string // default: "404.html"

	// SPAIndex, when set, is served with 200 for extensionless paths that
	// match no file so the client-side router can handle them (/rsvp, /gallery).
	SPAIndex string

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Site == nil {
		return fmt.Errorf("%w: Site is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// Ensure maintenance exists (fail fast on boot if mispackaged).
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	// Fallback 404 is optional; we degrade to plain text if missing.
	return nil
}
