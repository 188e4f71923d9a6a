package sitehandler

import (
	"context"
	"io/fs"
	"os"

	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

// DirSite serves the frontend build output from a directory on disk. The
// directory is checked on every call so a deploy that swaps it in place
// takes effect without a restart.
type DirSite struct {
	dir   string
	fsys  fs.FS
	index string
}

func NewDirSite(dir string) *DirSite {
	return &DirSite{dir: dir, fsys: os.DirFS(dir), index: "index.html"}
}

func (d *DirSite) Site() (fs.FS, bool) {
	if d.dir == "" || !existsFile(d.fsys, d.index) {
		return nil, false
	}
	return d.fsys, true
}

// Check implements health.Probe, failing until index.html is present.
func (d *DirSite) Check(context.Context) error {
	if d.dir == "" {
		return xerrors.New("site: no site directory configured")
	}
	if !existsFile(d.fsys, d.index) {
		return xerrors.Newf("site: %s missing", d.index)
	}
	return nil
}

// StaticSite wraps a fixed FS, e.g. an embedded build.
type StaticSite struct{ FS fs.FS }

func (s StaticSite) Site() (fs.FS, bool) { return s.FS, s.FS != nil }
