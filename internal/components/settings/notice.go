package settings

// ErrorKind classifies a validation notice.
type ErrorKind int

const (
	// MissingRequiredField covers the curator URL, collector URL and the
	// client credential pair.
	MissingRequiredField ErrorKind = iota + 1
	// InvalidFormat is a value that is present but malformed.
	InvalidFormat
	// ExternalAuthFailure carries the token endpoint's message verbatim.
	ExternalAuthFailure
)

func (k ErrorKind) String() string {
	switch k {
	case MissingRequiredField:
		return "missing_required_field"
	case InvalidFormat:
		return "invalid_format"
	case ExternalAuthFailure:
		return "external_auth_failure"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "missing_required_field":
		*k = MissingRequiredField
	case "invalid_format":
		*k = InvalidFormat
	case "external_auth_failure":
		*k = ExternalAuthFailure
	default:
		*k = 0
	}
	return nil
}

// Notice severities.
const (
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// Notice is a message shown above the settings form after a submission.
type Notice struct {
	Severity string    `json:"severity"`
	Kind     ErrorKind `json:"kind,omitzero"`
	Field    string    `json:"field,omitempty"`

	// MessageID names the catalog entry; empty for messages passed through
	// from the token endpoint.
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message"`
}

// IsError reports whether n is an error notice.
func (n Notice) IsError() bool {
	return n.Severity == SeverityError
}

// Error notices raised by the sanitizer.
var (
	noticeCredentialsRequired = Notice{
		Severity: SeverityError, Kind: MissingRequiredField, Field: KeyClientID,
		MessageID: "notice_credentials_required",
		Message:   "Both client ID and client secret are required for Curator integration!",
	}
	noticeCuratorURLRequired = Notice{
		Severity: SeverityError, Kind: MissingRequiredField, Field: KeyCuratorURL,
		MessageID: "notice_curator_url_required",
		Message:   "Client URL is required for Curator integration!",
	}
	noticeCuratorURLInvalid = Notice{
		Severity: SeverityError, Kind: InvalidFormat, Field: KeyCuratorURL,
		MessageID: "notice_curator_url_invalid",
		Message:   "Sophi Curator URL is invalid!",
	}
	noticeCollectorURLRequired = Notice{
		Severity: SeverityError, Kind: MissingRequiredField, Field: KeyCollectorURL,
		MessageID: "notice_collector_url_required",
		Message:   "Collector URL can not be empty.",
	}
	noticeEnvironmentInvalid = Notice{
		Severity: SeverityError, Kind: InvalidFormat, Field: KeyEnvironment,
		MessageID: "notice_environment_invalid",
		Message:   "Sophi environment is invalid!",
	}
)

// SavedNotice is shown after a submission that raised no errors.
var SavedNotice = Notice{
	Severity:  SeveritySuccess,
	MessageID: "notice_settings_saved",
	Message:   "Settings saved.",
}

// RejectedNotice is shown when a submission with errors was not persisted.
var RejectedNotice = Notice{
	Severity:  SeverityError,
	MessageID: "notice_settings_rejected",
	Message:   "Settings were not saved.",
}

// HasErrors reports whether any notice is an error.
func HasErrors(notices []Notice) bool {
	for _, n := range notices {
		if n.IsError() {
			return true
		}
	}
	return false
}

// Localized returns n with its message translated by tr. Messages without a
// catalog ID are returned unchanged.
func (n Notice) Localized(tr Translator) Notice {
	if n.MessageID != "" {
		n.Message = translate(tr, n.MessageID, n.Message)
	}
	return n
}

// LocalizeNotices returns a translated copy of notices.
func LocalizeNotices(notices []Notice, tr Translator) []Notice {
	out := make([]Notice, len(notices))
	for i, n := range notices {
		out[i] = n.Localized(tr)
	}
	return out
}
