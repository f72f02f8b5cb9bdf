package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/api"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/curator"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/i18n"
)

// SecretMask stands in for sensitive values in responses. Sending it back
// in a PUT keeps the stored value.
const SecretMask = "********"

// settingsHandler serves /api/settings and /api/curator.
type settingsHandler struct {
	manager *settings.Manager
	curator *curator.Auth
	log     *slog.Logger
}

func (h *settingsHandler) logger(ctx context.Context) *slog.Logger {
	return appctx.Logger(ctx, h.log)
}

type updateResponse struct {
	Record  settings.Record   `json:"record"`
	Notices []settings.Notice `json:"notices"`
	Saved   bool              `json:"saved"`
}

// settingInfo describes one field of the schema response.
type settingInfo struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Value        string            `json:"value"`
	Type         string            `json:"type"`
	DefaultValue string            `json:"default_value"`
	Description  string            `json:"description,omitempty"`
	Category     string            `json:"category"`
	Options      []settings.Choice `json:"options,omitempty"`
}

// categorizedSettings is one section of the schema response.
type categorizedSettings struct {
	CategoryName string        `json:"category_name"`
	Settings     []settingInfo `json:"settings"`
}

type tokenStatus struct {
	TokenType string     `json:"token_type"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

func maskRecord(rec settings.Record) settings.Record {
	if rec.ClientSecret != "" {
		rec.ClientSecret = SecretMask
	}
	return rec
}

// Get handles GET /api/settings.
func (h *settingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Get(r.Context())
	if err != nil {
		h.logger(r.Context()).Error("settings read failed", "error", err)
		api.WriteInternalError(w, "failed to read settings")
		return
	}
	api.WriteJSON(w, http.StatusOK, maskRecord(rec))
}

// Put handles PUT /api/settings. The body replaces the whole record: keys
// left out are treated like an unchecked or empty form field.
func (h *settingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	stored, err := h.manager.Get(ctx)
	if err != nil {
		h.logger(r.Context()).Error("settings read failed", "error", err)
		api.WriteInternalError(w, "failed to read settings")
		return
	}

	sub, err := submissionFromJSON(h.manager.Registry(), body, stored)
	if err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	res, err := h.manager.Update(ctx, sub)
	if err != nil {
		h.logger(r.Context()).Error("settings save failed", "error", err)
		api.WriteInternalError(w, "failed to save settings")
		return
	}

	resp := updateResponse{
		Record:  maskRecord(res.Record),
		Notices: settings.LocalizeNotices(res.Notices, i18n.FromContext(ctx)),
		Saved:   res.Saved,
	}
	status := http.StatusOK
	if !res.Saved {
		status = http.StatusUnprocessableEntity
	}
	api.WriteJSON(w, status, resp)
}

// submissionFromJSON converts a JSON object to a form submission. Booleans
// become "1"/"0" like a checkbox, numbers keep their literal text.
func submissionFromJSON(reg *settings.Registry, body map[string]any, stored settings.Record) (settings.Submission, error) {
	sub := make(settings.Submission, len(body))
	for key, raw := range body {
		f, ok := reg.Field(key)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", key)
		}
		var v string
		switch t := raw.(type) {
		case nil:
			continue
		case string:
			v = t
		case bool:
			v = "0"
			if t {
				v = "1"
			}
		case json.Number:
			v = t.String()
		default:
			return nil, fmt.Errorf("field %q must be a string, number or boolean", key)
		}
		if f.Sensitive && v == SecretMask {
			v, _ = stored.Get(key)
		}
		sub[key] = v
	}
	return sub, nil
}

// Schema handles GET /api/settings/schema.
func (h *settingsHandler) Schema(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Get(r.Context())
	if err != nil {
		h.logger(r.Context()).Error("settings read failed", "error", err)
		api.WriteInternalError(w, "failed to read settings")
		return
	}

	tr := i18n.FromContext(r.Context())
	reg := h.manager.Registry()
	values := maskRecord(rec).Values()

	out := make([]categorizedSettings, 0, len(reg.Sections()))
	for _, s := range reg.Sections() {
		cat := categorizedSettings{CategoryName: tr.T(s.TitleID, s.Title)}
		for _, f := range s.Fields {
			def, _ := reg.Default(f.Key)
			info := settingInfo{
				Key:          f.Key,
				Name:         tr.T(f.LabelID, f.Label),
				Value:        values[f.Key],
				Type:         f.Control.Kind(),
				DefaultValue: def,
				Description:  tr.T(f.DescriptionID, f.Description),
				Category:     s.ID,
			}
			if sel, ok := f.Control.(settings.Select); ok {
				for _, c := range sel.Options {
					info.Options = append(info.Options, settings.Choice{Value: c.Value, Label: tr.T(c.LabelID, c.Label)})
				}
			}
			cat.Settings = append(cat.Settings, info)
		}
		out = append(out, cat)
	}
	api.WriteJSON(w, http.StatusOK, out)
}

// Token handles GET /api/curator/token. It reports whether the saved
// credentials yield a token without revealing the token itself.
func (h *settingsHandler) Token(w http.ResponseWriter, r *http.Request) {
	tok, err := h.curator.AccessToken(r.Context())
	if err != nil {
		if errors.Is(err, curator.ErrNotConfigured) {
			api.WriteBadRequest(w, api.ReasonBadRequest, err.Error())
			return
		}
		h.logger(r.Context()).Warn("curator token unavailable", "error", err)
		api.WriteError(w, http.StatusBadGateway, api.ReasonUpstreamError, err.Error())
		return
	}

	status := tokenStatus{TokenType: tok.Type()}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		status.Expiry = &exp
	}
	api.WriteJSON(w, http.StatusOK, status)
}

// maxBody bounds request bodies read by the handlers.
const maxBody = 64 << 10

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		next.ServeHTTP(w, r)
	})
}
