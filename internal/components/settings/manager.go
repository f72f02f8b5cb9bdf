package settings

import (
	"context"
	"log/slog"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

// SaveHook runs after a record was persisted.
type SaveHook func(ctx context.Context, rec Record) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// RejectInvalid refuses to persist submissions that raised error
	// notices. When false the record is saved with best-effort corrections.
	RejectInvalid bool

	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Manager ties the schema, sanitizer and accessor to one option store.
type Manager struct {
	*Accessor
	sanitizer     *Sanitizer
	rejectInvalid bool
	hooks         []SaveHook
	metrics       *metrics.Metrics
	log           *slog.Logger
}

// NewManager returns a manager persisting to options.
func NewManager(options store.OptionStore, registry *Registry, sanitizer *Sanitizer, c ManagerConfig) *Manager {
	return &Manager{
		Accessor:      NewAccessor(options, registry),
		sanitizer:     sanitizer,
		rejectInvalid: c.RejectInvalid,
		metrics:       c.Metrics,
		log:           logutil.NoopIfNil(c.Log),
	}
}

// OnSave registers a hook run after every successful save.
func (m *Manager) OnSave(h SaveHook) {
	m.hooks = append(m.hooks, h)
}

// UpdateResult is the outcome of one submission.
type UpdateResult struct {
	Record  Record   `json:"record"`
	Notices []Notice `json:"notices"`
	Saved   bool     `json:"saved"`
}

// Update sanitizes sub and persists it. Validation problems are returned as
// notices, not errors; err is set only when storage fails.
func (m *Manager) Update(ctx context.Context, sub Submission) (UpdateResult, error) {
	rec, notices := m.sanitizer.Sanitize(ctx, sub)
	for _, n := range notices {
		m.metrics.Notice(n.Kind.String())
	}
	res := UpdateResult{Record: rec, Notices: notices}

	if m.rejectInvalid && HasErrors(notices) {
		res.Notices = append(res.Notices, RejectedNotice)
		m.metrics.SettingsSaved(metrics.SaveRejected)
		m.log.Info("settings rejected", "notices", len(notices))
		return res, nil
	}

	if err := m.save(ctx, rec); err != nil {
		m.metrics.SettingsSaved(metrics.SaveFailed)
		return res, err
	}
	res.Saved = true
	m.metrics.SettingsSaved(metrics.SaveSaved)
	m.log.Info("settings saved",
		"environment", rec.Environment,
		"collector_url", rec.CollectorURL,
		"notices", len(notices))

	for _, h := range m.hooks {
		if err := h(ctx, rec); err != nil {
			m.log.Warn("settings save hook failed", "error", err)
		}
	}
	return res, nil
}
