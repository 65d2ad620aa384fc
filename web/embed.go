// Package web holds the dashboard templates and stylesheet.
package web

import "embed"

// TemplatesFS holds the page and fragment templates parsed at startup.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds assets served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
