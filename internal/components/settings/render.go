package settings

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
)

// Translator resolves catalog message IDs. A nil Translator is allowed by
// Renderer and leaves the English text in place.
type Translator interface {
	T(id, fallback string) string
}

var controlTemplates = template.Must(template.New("controls").Parse(`
{{- define "input" -}}
<input type="{{.Type}}" id="sophi-settings-{{.Key}}" class="{{.Class}}" name="{{.Name}}" value="{{.Value}}"{{if .Checked}} checked="checked"{{end}} />
{{- template "description" . -}}
{{- end -}}

{{- define "select" -}}
<select id="sophi-settings-{{.Key}}" name="{{.Name}}">
{{- range .Choices}}<option value="{{.Value}}"{{if .Selected}} selected="selected"{{end}}>{{.Label}}</option>{{end -}}
</select>
{{- template "description" . -}}
{{- end -}}

{{- define "description" -}}
{{- if .Description -}}
{{- if not .Inline}}<br />{{end}}<span class="description">{{.Description}}</span>
{{- end -}}
{{- end -}}
`))

type controlView struct {
	Type        string
	Key         string
	Name        string
	Class       string
	Value       string
	Checked     bool
	Choices     []choiceView
	Description template.HTML
	Inline      bool
}

type choiceView struct {
	Value    string
	Label    string
	Selected bool
}

// Renderer writes the HTML control of a field.
type Renderer struct {
	registry *Registry
	policy   *bluemonday.Policy
}

// NewRenderer returns a renderer using registry for default values.
// Descriptions are filtered through bluemonday's UGC policy.
func NewRenderer(registry *Registry) *Renderer {
	return &Renderer{registry: registry, policy: bluemonday.UGCPolicy()}
}

// RenderField writes the control for f. The current value comes from values;
// an empty or missing value falls back to the field's declared default.
func (r *Renderer) RenderField(w io.Writer, f Field, values map[string]string, tr Translator) error {
	value := values[f.Key]
	if value == "" {
		value, _ = r.registry.Default(f.Key)
	}

	v := controlView{
		Key:  f.Key,
		Name: FieldName(f.Key),
	}
	if f.Description != "" {
		v.Description = template.HTML(r.policy.Sanitize(translate(tr, f.DescriptionID, f.Description)))
	}

	switch c := f.Control.(type) {
	case Text:
		v.Type, v.Class, v.Value = "text", "regular-text", value
	case Password:
		v.Type, v.Class, v.Value = "password", "regular-text", value
	case Number:
		v.Type, v.Class, v.Value = "number", "small-text", value
	case Checkbox:
		v.Type, v.Value, v.Checked, v.Inline = "checkbox", "1", value == "1", true
	case Select:
		for _, o := range c.Options {
			v.Choices = append(v.Choices, choiceView{
				Value:    o.Value,
				Label:    translate(tr, o.LabelID, o.Label),
				Selected: o.Value == value,
			})
		}
		return controlTemplates.ExecuteTemplate(w, "select", v)
	default:
		return fmt.Errorf("settings: field %s has unsupported control %T", f.Key, f.Control)
	}
	return controlTemplates.ExecuteTemplate(w, "input", v)
}

// Field renders f to a string for embedding in a page template.
func (r *Renderer) Field(f Field, values map[string]string, tr Translator) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.RenderField(&buf, f, values, tr); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// FieldName is the form input name of key.
func FieldName(key string) string {
	return Group + "[" + key + "]"
}

func translate(tr Translator, id, fallback string) string {
	if tr == nil {
		return fallback
	}
	return tr.T(id, fallback)
}
