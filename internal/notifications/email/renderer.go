package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"eduplatform/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// deletionDateLayout renders the date without a time; deletion happens at
// some point during that day's run.
const deletionDateLayout = "2 January 2006"

// RenderedEmail holds the pre-rendered content of one message.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

type warningData struct {
	Subject      string
	Name         string
	DeletionDate string
	ResourceLink string
}

// Renderer renders the inactivity warning from the embedded templates.
type Renderer struct {
	html *template.Template
	text *texttemplate.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	html, err := template.ParseFS(templateFS, "templates/base.html", "templates/inactivity_warning.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/inactivity_warning.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: parse text template: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

// Render produces the subject and both bodies for w.
func (r *Renderer) Render(w types.InactivityWarning) (*RenderedEmail, error) {
	data := newWarningData(w)

	var html bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, "base.html", data); err != nil {
		return nil, fmt.Errorf("renderer: render html: %w", err)
	}
	var text bytes.Buffer
	if err := r.text.ExecuteTemplate(&text, "inactivity_warning.txt", data); err != nil {
		return nil, fmt.Errorf("renderer: render text: %w", err)
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: html.String(),
		BodyText: text.String(),
	}, nil
}

// TemplateData is the dynamic_template_data sent with a SendGrid template.
func TemplateData(w types.InactivityWarning) map[string]interface{} {
	data := newWarningData(w)
	return map[string]interface{}{
		"subject":       data.Subject,
		"name":          data.Name,
		"deletion_date": data.DeletionDate,
		"resource_link": data.ResourceLink,
	}
}

func newWarningData(w types.InactivityWarning) warningData {
	name := w.Name
	if name == "" {
		name = "there"
	}
	date := w.DeletionDate.UTC().Format(deletionDateLayout)
	return warningData{
		Subject:      "Your EduPlatform account will be deleted on " + date,
		Name:         name,
		DeletionDate: date,
		ResourceLink: w.ResourceLink,
	}
}
