// Package mailer renders notification jobs into emails and delivers them
// through Resend.
package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"roofpro-hub/internal/notify"
)

//go:embed templates/*.html
var templatesFS embed.FS

var subjects = map[string]string{
	notify.TemplateWelcome:          "Welcome to TSM Roof Pro Hub",
	notify.TemplateSubmissionStatus: "Commission submission for {{.job}} is {{.to_status}}",
	notify.TemplateDocumentStatus:   "Commission document for {{.job}} is {{.to_status}}",
	notify.TemplateHoldPlaced:       "Compliance hold placed{{if .job}} on job {{.job}}{{end}}",
	notify.TemplateSOPPublished:     "Action required: acknowledge {{.number}} {{.title}}",
	notify.TemplateAdhoc:            "{{.subject}}",
}

type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

type Renderer struct {
	from      string
	portalURL string
	subjects  map[string]*texttemplate.Template
	bodies    map[string]*template.Template
}

func NewRenderer(from, portalURL string) (*Renderer, error) {
	r := &Renderer{
		from:      from,
		portalURL: portalURL,
		subjects:  make(map[string]*texttemplate.Template, len(subjects)),
		bodies:    make(map[string]*template.Template, len(subjects)),
	}
	for name, subject := range subjects {
		st, err := texttemplate.New(name).Option("missingkey=zero").Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", name, err)
		}
		bt, err := template.New(name).Option("missingkey=zero").
			ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse body %s: %w", name, err)
		}
		r.subjects[name] = st
		r.bodies[name] = bt
	}
	return r, nil
}

// Render builds the email for job. Unknown templates are a permanent
// failure.
func (r *Renderer) Render(job notify.Job) (Message, error) {
	st, ok := r.subjects[job.Template]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", job.Template)
	}
	data := make(map[string]string, len(job.Data)+1)
	for k, v := range job.Data {
		data[k] = v
	}
	data["portal_url"] = r.portalURL

	var subject bytes.Buffer
	if err := st.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	var body bytes.Buffer
	if err := r.bodies[job.Template].ExecuteTemplate(&body, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}

	s := strings.TrimSpace(subject.String())
	if s == "" {
		s = "TSM Roof Pro Hub notification"
	}
	return Message{
		From:    r.from,
		To:      job.To,
		Subject: s,
		HTML:    body.String(),
	}, nil
}
