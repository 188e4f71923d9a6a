package sitehandler

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/babyshower-web/internal/log"
)

func fallbackFS(with404 bool) fstest.MapFS {
	m := fstest.MapFS{
		"maintenance.html": {Data: []byte("<h1>Back soon</h1>")},
	}
	if with404 {
		m["404.html"] = &fstest.MapFile{Data: []byte("<h1>Fallback 404</h1>")}
	}
	return m
}

// showerSite mimics a built frontend.
func showerSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html":               {Data: []byte("<h1>Welcome to the shower</h1>")},
		"registry/index.html":      {Data: []byte("<h1>Registry</h1>")},
		"registry/crib/index.html": {Data: []byte("<h1>Crib</h1>")},
		"assets/app.3f9a.js":       {Data: []byte("console.log('hi')")},
		"assets/app.3f9a.css":      {Data: []byte("body{}")},
		"photos/cake.webp":         {Data: []byte("RIFF")},
		"manifest.json":            {Data: []byte(`{"name":"shower"}`)},
		"404.html":                 {Data: []byte("<h1>Lost?</h1>")},
	}
}

type stubSite struct {
	fsys fs.FS
	ok   bool
}

func (s stubSite) Site() (fs.FS, bool) { return s.fsys, s.ok }

func newHandler(t *testing.T, site SiteProvider, fallback fs.FS, spa string) *Handler {
	t.Helper()
	h, err := New(Options{Logger: log.Nop(), Site: site, FallbackFS: fallback, SPAIndex: spa})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"valid", Options{Site: StaticSite{FS: showerSite()}, FallbackFS: fallbackFS(true)}, true},
		{"nil site", Options{FallbackFS: fallbackFS(true)}, false},
		{"nil fallback", Options{Site: StaticSite{FS: showerSite()}}, false},
		{"missing maintenance", Options{Site: StaticSite{}, FallbackFS: fstest.MapFS{}}, false},
		{"custom maintenance", Options{
			Site:            StaticSite{},
			FallbackFS:      fstest.MapFS{"down.html": {Data: []byte("down")}},
			MaintenanceFile: "down.html",
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.opts)
			if tt.ok {
				if err != nil || h == nil {
					t.Fatalf("New: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("err = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	h := newHandler(t, StaticSite{}, fallbackFS(true), "")
	o := h.opts
	if o.MaintenanceFile != "maintenance.html" || o.Fallback404File != "404.html" || o.Site404File != "404.html" {
		t.Fatalf("file defaults = %+v", o)
	}
	if o.HTMLCacheControl != "no-cache" || !strings.Contains(o.AssetCacheControl, "immutable") {
		t.Fatalf("cache defaults = %q / %q", o.HTMLCacheControl, o.AssetCacheControl)
	}
}

func TestServeHTTP_Routes(t *testing.T) {
	h := newHandler(t, StaticSite{FS: showerSite()}, fallbackFS(true), "index.html")

	tests := []struct {
		name     string
		method   string
		target   string
		code     int
		body     string
		location string
		cache    string
	}{
		{name: "root", method: "GET", target: "/", code: 200, body: "Welcome", cache: "no-cache"},
		{name: "head root", method: "HEAD", target: "/", code: 200, cache: "no-cache"},
		{name: "dir index", method: "GET", target: "/registry/", code: 200, body: "Registry"},
		{name: "nested dir index", method: "GET", target: "/registry/crib/", code: 200, body: "Crib"},
		{name: "pretty url redirect", method: "GET", target: "/registry", code: http.StatusPermanentRedirect, location: "/registry/"},
		{name: "hashed asset", method: "GET", target: "/assets/app.3f9a.js", code: 200, cache: "public, max-age=31536000, immutable"},
		{name: "photo", method: "GET", target: "/photos/cake.webp", code: 200, cache: "public, max-age=31536000, immutable"},
		{name: "other file", method: "GET", target: "/manifest.json", code: 200, cache: "public, max-age=3600"},
		{name: "spa route", method: "GET", target: "/rsvp", code: 200, body: "Welcome", cache: "no-cache"},
		{name: "nested spa route", method: "GET", target: "/gallery/mine", code: 200, body: "Welcome"},
		{name: "missing asset", method: "GET", target: "/assets/gone.js", code: 404, body: "Lost?", cache: "no-store"},
		{name: "dot segments", method: "GET", target: "/registry/../../etc/passwd", code: 404, cache: "no-store"},
		{name: "backslash", method: "GET", target: "/registry%5Ccrib", code: 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.target)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.body != "" && !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Fatalf("Location = %q, want %q", rec.Header().Get("Location"), tt.location)
			}
			if tt.cache != "" && rec.Header().Get("Cache-Control") != tt.cache {
				t.Fatalf("Cache-Control = %q, want %q", rec.Header().Get("Cache-Control"), tt.cache)
			}
		})
	}
}

func TestServeHTTP_NoSPAIndexMeansNotFound(t *testing.T) {
	h := newHandler(t, StaticSite{FS: showerSite()}, fallbackFS(true), "")
	if rec := serve(h, "GET", "/rsvp"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without an SPA index", rec.Code)
	}
}

func TestServeHTTP_OnlyGetAndHead(t *testing.T) {
	h := newHandler(t, StaticSite{FS: showerSite()}, fallbackFS(true), "index.html")
	for _, m := range []string{"POST", "PUT", "DELETE", "PATCH", "OPTIONS"} {
		rec := serve(h, m, "/")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", m, rec.Code)
		}
		if rec.Header().Get("Allow") != "GET, HEAD" {
			t.Errorf("%s: Allow = %q", m, rec.Header().Get("Allow"))
		}
		if rec.Body.Len() != 0 {
			t.Errorf("%s: body = %q, want empty", m, rec.Body.String())
		}
	}
}

func TestServeHTTP_NotFoundFallbacks(t *testing.T) {
	noSite404 := fstest.MapFS{"index.html": {Data: []byte("home")}}

	rec := serve(newHandler(t, StaticSite{FS: noSite404}, fallbackFS(true), ""), "GET", "/nope.txt")
	if rec.Code != 404 || !strings.Contains(rec.Body.String(), "Fallback 404") {
		t.Fatalf("fallback 404: %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(newHandler(t, StaticSite{FS: noSite404}, fallbackFS(false), ""), "GET", "/nope.txt")
	if rec.Code != 404 || rec.Body.String() != "404 page not found" {
		t.Fatalf("plain 404: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestServeHTTP_MaintenanceUntilDeployed(t *testing.T) {
	h := newHandler(t, stubSite{}, fallbackFS(true), "index.html")
	for _, p := range []string{"/", "/rsvp", "/assets/app.js"} {
		rec := serve(h, "GET", p)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status = %d, want 503", p, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Back soon") {
			t.Fatalf("%s: body = %q", p, rec.Body.String())
		}
		if rec.Header().Get("Retry-After") == "" || rec.Header().Get("Cache-Control") != "no-store" {
			t.Fatalf("%s: headers = %v", p, rec.Header())
		}
	}
}

func TestStatusOverrideWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusOverrideWriter{ResponseWriter: rec, status: http.StatusNotFound}
	w.WriteHeader(http.StatusOK)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("first WriteHeader: %d, want the override", rec.Code)
	}
	if !w.wroteHeader {
		t.Fatal("wroteHeader not set")
	}
}

var _ http.Handler = (*Handler)(nil)
