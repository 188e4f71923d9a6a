package sitehandler

import (
	"path"
	"strings"
)

type cacheClass int

const (
	classOther cacheClass = iota
	classPage
	classAsset
)

// assetExts are fingerprinted by the frontend build or are photos that never
// change under the same name.
var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".avif": true,
	".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

func classify(name string) cacheClass {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == ".html", ext == "":
		// extensionless names are pretty urls
		return classPage
	case assetExts[ext]:
		return classAsset
	default:
		return classOther
	}
}

func cacheControlForFile(name string, o *Options) string {
	switch classify(name) {
	case classPage:
		return o.HTMLCacheControl
	case classAsset:
		return o.AssetCacheControl
	}
	return o.OtherCacheControl
}
