package pubdocs

import "embed"

// EmbeddedAssets contains static assets shipped with the service:
// pubdocs.css for the default views.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
