package service

import (
	"log/slog"
	"net/http"
)

// Service is one mounted HTTP surface of the admin screen (the JSON API or
// the HTML settings UI). The server mounts Handler under {base}/{Prefix()};
// Unprotected lists service-relative paths the session gate lets through.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
	Unprotected() []string
}

// NewService builds a service from its [http.services.<name>] table. Shared
// dependencies come from deps.GetDeps().
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)

// ConfigSource returns the raw [http.services.<name>] table, or nil.
type ConfigSource func(name string) map[string]any
