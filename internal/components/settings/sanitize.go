package settings

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

// TokenRequester exchanges client credentials for a Curator access token.
// The error text is shown to the administrator as is.
type TokenRequester interface {
	RequestAccessToken(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error)
}

// Sanitizer turns a raw submission into a record plus validation notices.
// Errors never abort the pass; the record carries every correction that
// could be applied.
type Sanitizer struct {
	tokens TokenRequester
	log    *slog.Logger
}

// NewSanitizer returns a sanitizer that verifies credentials with tokens.
func NewSanitizer(tokens TokenRequester, log *slog.Logger) *Sanitizer {
	return &Sanitizer{tokens: tokens, log: logutil.NoopIfNil(log)}
}

// Sanitize validates sub. Notices are returned in a fixed order:
// credentials, curator URL, collector URL, environment.
func (s *Sanitizer) Sanitize(ctx context.Context, sub Submission) (Record, []Notice) {
	var notices []Notice
	rec := Record{
		Environment:     Environment(sub[KeyEnvironment]),
		CollectorURL:    sub[KeyCollectorURL],
		TrackerClientID: sub[KeyTrackerClientID],
		ClientID:        sub[KeyClientID],
		ClientSecret:    sub[KeyClientSecret],
		CuratorURL:      sub[KeyCuratorURL],
	}

	// An unchecked checkbox is not posted at all.
	if v := sub[KeyQueryIntegration]; v == "" || v == "0" {
		rec.QueryIntegration = 0
	} else {
		rec.QueryIntegration = 1
	}

	envInvalid := false
	switch {
	case rec.Environment == "":
		rec.Environment = EnvProduction
	case !rec.Environment.Valid():
		envInvalid = true
		rec.Environment = EnvProduction
	}

	if rec.ClientID != "" && rec.ClientSecret != "" {
		if s.tokens != nil {
			// Check the credentials against the endpoint being saved.
			checkCtx := WithEnvironment(ctx, rec.Environment)
			if _, err := s.tokens.RequestAccessToken(checkCtx, rec.ClientID, rec.ClientSecret); err != nil {
				s.log.Info("curator credential check failed", "client_id", rec.ClientID, "error", err)
				notices = append(notices, Notice{
					Severity: SeverityError,
					Kind:     ExternalAuthFailure,
					Field:    KeyClientID,
					Message:  err.Error(),
				})
			}
		}
	} else {
		notices = append(notices, noticeCredentialsRequired)
	}

	if rec.CuratorURL == "" {
		notices = append(notices, noticeCuratorURLRequired)
	} else if !IsAbsoluteURL(rec.CuratorURL) {
		notices = append(notices, noticeCuratorURLInvalid)
	}

	if rec.CollectorURL == "" {
		notices = append(notices, noticeCollectorURLRequired)
	} else {
		rec.CollectorURL = StripScheme(rec.CollectorURL)
	}

	if envInvalid {
		notices = append(notices, noticeEnvironmentInvalid)
	}

	return rec, notices
}

// StripScheme removes one leading "http://" or "https://".
func StripScheme(v string) string {
	if rest, ok := strings.CutPrefix(v, "http://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(v, "https://"); ok {
		return rest
	}
	return v
}

// IsAbsoluteURL reports whether v parses as a URL with a scheme and a host.
func IsAbsoluteURL(v string) bool {
	if strings.ContainsAny(v, " \t\r\n") {
		return false
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
