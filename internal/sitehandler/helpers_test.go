package sitehandler

import (
	"io/fs"
	"testing/fstest"
)

// activeProvider wraps fsys as an always-available SiteProvider.
func activeProvider(fsys fs.FS) SiteProvider { return stubSite{fsys: fsys, ok: true} }

// testSiteFS is a minimal built frontend for the SPA tests.
func testSiteFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":       {Data: []byte("<h1>Home</h1>")},
		"about/index.html": {Data: []byte("<h1>About</h1>")},
		"assets/app.js":    {Data: []byte("console.log('hi')")},
	}
}

func testFallbackFS() fstest.MapFS { return fallbackFS(true) }
