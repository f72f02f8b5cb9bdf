package settings

// Control is the rendering variant of a field. The set of implementations is
// closed: Text, Password, Number, Checkbox and Select.
type Control interface {
	// Kind is the stable name used by the JSON schema.
	Kind() string
	control()
}

// Text is a single-line text input.
type Text struct{}

// Password is a masked text input.
type Password struct{}

// Number is a numeric input.
type Number struct{}

// Checkbox is checked iff the stored value is "1".
type Checkbox struct{}

// Select renders one option per entry, in order.
type Select struct {
	Options []Choice
}

// Choice is one select option.
type Choice struct {
	Value   string `json:"value"`
	Label   string `json:"label"`
	LabelID string `json:"-"`
}

func (Text) Kind() string     { return "text" }
func (Password) Kind() string { return "password" }
func (Number) Kind() string   { return "number" }
func (Checkbox) Kind() string { return "checkbox" }
func (Select) Kind() string   { return "select" }

func (Text) control()     {}
func (Password) control() {}
func (Number) control()   {}
func (Checkbox) control() {}
func (Select) control()   {}

// Field is the metadata of one setting.
type Field struct {
	Key     string
	Label   string
	LabelID string
	Control Control

	// Description may contain basic inline HTML; it is sanitized on render.
	Description   string
	DescriptionID string

	// Sensitive fields are masked in API responses and logs.
	Sensitive bool
}

// Section groups fields under a heading.
type Section struct {
	ID      string
	Title   string
	TitleID string
	Fields  []Field
}

// DomainSource provides the current site's domain.
type DomainSource interface {
	Domain() string
}

// Registry declares the settings sections, fields and defaults.
type Registry struct {
	sections []Section
	byKey    map[string]Field
	defaults map[string]string
}

// NewRegistry builds the Sophi settings schema. The tracker client ID
// defaults to the site's domain.
func NewRegistry(site DomainSource) *Registry {
	domain := ""
	if site != nil {
		domain = site.Domain()
	}

	envChoices := Select{Options: []Choice{
		{Value: string(EnvProduction), Label: "Production", LabelID: "env_prod"},
		{Value: string(EnvStaging), Label: "Staging", LabelID: "env_stg"},
		{Value: string(EnvDevelopment), Label: "Development", LabelID: "env_dev"},
	}}

	r := &Registry{
		sections: []Section{
			{
				ID: "environment", Title: "Environment settings", TitleID: "section_environment",
				Fields: []Field{
					{Key: KeyEnvironment, Label: "Environment", LabelID: "field_environment", Control: envChoices},
				},
			},
			{
				ID: "collector_settings", Title: "Collector settings", TitleID: "section_collector_settings",
				Fields: []Field{
					{
						Key: KeyCollectorURL, Label: "Collector URL", LabelID: "field_collector_url", Control: Text{},
						Description: "Please use URL without http(s) scheme.", DescriptionID: "desc_collector_url",
					},
					{Key: KeyTrackerClientID, Label: "Tracker Client ID", LabelID: "field_tracker_client_id", Control: Text{}},
				},
			},
			{
				ID: "sophi_api", Title: "Sophi API settings", TitleID: "section_sophi_api",
				Fields: []Field{
					{Key: KeyClientID, Label: "Sophi Client ID", LabelID: "field_sophi_client_id", Control: Text{}},
					{Key: KeyClientSecret, Label: "Sophi Client Secret", LabelID: "field_sophi_client_secret", Control: Password{}, Sensitive: true},
					{Key: KeyCuratorURL, Label: "Sophi Curator URL", LabelID: "field_sophi_curator_url", Control: Text{}},
					{
						Key: KeyQueryIntegration, Label: "Query Integration", LabelID: "field_query_integration", Control: Checkbox{},
						Description: "Replace WP Query result with curated data from Sophi.", DescriptionID: "desc_query_integration",
					},
				},
			},
		},
		defaults: map[string]string{
			KeyEnvironment:      string(EnvProduction),
			KeyCollectorURL:     "collector.sophi.io",
			KeyTrackerClientID:  domain,
			KeyClientID:         "",
			KeyClientSecret:     "",
			KeyCuratorURL:       "",
			KeyQueryIntegration: "1",
		},
		byKey: make(map[string]Field),
	}
	for _, s := range r.sections {
		for _, f := range s.Fields {
			r.byKey[f.Key] = f
		}
	}
	return r
}

// Sections returns the sections in display order.
func (r *Registry) Sections() []Section {
	return r.sections
}

// Field returns the metadata for key.
func (r *Registry) Field(key string) (Field, bool) {
	f, ok := r.byKey[key]
	return f, ok
}

// Default returns the declared default for key. ok is false for keys that
// are not part of the schema.
func (r *Registry) Default(key string) (value string, ok bool) {
	value, ok = r.defaults[key]
	return value, ok
}

// Defaults returns the full default record.
func (r *Registry) Defaults() Record {
	return Record{
		Environment:      Environment(r.defaults[KeyEnvironment]),
		CollectorURL:     r.defaults[KeyCollectorURL],
		TrackerClientID:  r.defaults[KeyTrackerClientID],
		ClientID:         r.defaults[KeyClientID],
		ClientSecret:     r.defaults[KeyClientSecret],
		CuratorURL:       r.defaults[KeyCuratorURL],
		QueryIntegration: 1,
	}
}

// defaultMap returns the defaults keyed by field, with query_integration as
// an integer so it decodes like a persisted record.
func (r *Registry) defaultMap() map[string]any {
	m := make(map[string]any, len(r.defaults))
	for k, v := range r.defaults {
		m[k] = v
	}
	m[KeyQueryIntegration] = 1
	return m
}
