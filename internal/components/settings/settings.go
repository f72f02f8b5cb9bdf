// Package settings implements the Sophi settings screen: the field schema,
// HTML controls, submission sanitizing and the read-through accessor over
// the persisted option.
package settings

import (
	"context"
	"errors"
	"strconv"
)

// Group is the settings group name. The record is persisted under the option
// of the same name and form fields are posted as Group[<key>].
const Group = "sophi_settings"

// OptionName is the storage key of the settings record.
const OptionName = Group

// PageSlug identifies the settings page.
const PageSlug = "sophi"

// Field keys.
const (
	KeyEnvironment      = "environment"
	KeyCollectorURL     = "collector_url"
	KeyTrackerClientID  = "tracker_client_id"
	KeyClientID         = "sophi_client_id"
	KeyClientSecret     = "sophi_client_secret"
	KeyCuratorURL       = "sophi_curator_url"
	KeyQueryIntegration = "query_integration"
)

// Keys lists every field key in form order.
var Keys = []string{
	KeyEnvironment,
	KeyCollectorURL,
	KeyTrackerClientID,
	KeyClientID,
	KeyClientSecret,
	KeyCuratorURL,
	KeyQueryIntegration,
}

// ErrUnknownField is returned for keys that are not part of the schema.
var ErrUnknownField = errors.New("unknown settings field")

// Environment selects the Sophi deployment the site talks to.
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvStaging     Environment = "stg"
	EnvDevelopment Environment = "dev"
)

// Environments lists the selectable environments in display order.
var Environments = []Environment{EnvProduction, EnvStaging, EnvDevelopment}

// Valid reports whether e is one of Environments.
func (e Environment) Valid() bool {
	switch e {
	case EnvProduction, EnvStaging, EnvDevelopment:
		return true
	}
	return false
}

type environmentKey struct{}

// WithEnvironment returns ctx carrying the environment a submission is being
// checked against. Token requesters prefer it over the stored one.
func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

// EnvironmentFromContext returns the environment set by WithEnvironment.
func EnvironmentFromContext(ctx context.Context) (Environment, bool) {
	env, ok := ctx.Value(environmentKey{}).(Environment)
	return env, ok && env.Valid()
}

// Record is the persisted settings blob.
type Record struct {
	Environment      Environment `json:"environment" mapstructure:"environment"`
	CollectorURL     string      `json:"collector_url" mapstructure:"collector_url"`
	TrackerClientID  string      `json:"tracker_client_id" mapstructure:"tracker_client_id"`
	ClientID         string      `json:"sophi_client_id" mapstructure:"sophi_client_id"`
	ClientSecret     string      `json:"sophi_client_secret" mapstructure:"sophi_client_secret"`
	CuratorURL       string      `json:"sophi_curator_url" mapstructure:"sophi_curator_url"`
	QueryIntegration int         `json:"query_integration" mapstructure:"query_integration"`
}

// QueryIntegrationEnabled reports whether curated results replace the
// site's query results.
func (r Record) QueryIntegrationEnabled() bool {
	return r.QueryIntegration == 1
}

// Values returns the record in its form representation, one string per key.
func (r Record) Values() map[string]string {
	return map[string]string{
		KeyEnvironment:      string(r.Environment),
		KeyCollectorURL:     r.CollectorURL,
		KeyTrackerClientID:  r.TrackerClientID,
		KeyClientID:         r.ClientID,
		KeyClientSecret:     r.ClientSecret,
		KeyCuratorURL:       r.CuratorURL,
		KeyQueryIntegration: strconv.Itoa(r.QueryIntegration),
	}
}

// Get returns the form value for key.
func (r Record) Get(key string) (string, error) {
	v, ok := r.Values()[key]
	if !ok {
		return "", ErrUnknownField
	}
	return v, nil
}

// Submission is a raw form post: Group[<key>] values keyed by field key.
// Absent keys are simply missing from the map.
type Submission map[string]string

// SubmissionFromRecord returns the submission that would reproduce r.
func SubmissionFromRecord(r Record) Submission {
	return Submission(r.Values())
}
