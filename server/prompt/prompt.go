// Package prompt renders the system prompts sent with every completion.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/teilomillet/concierge/config"
)

// Data is the value prompt templates are executed against.
type Data struct {
	HasImage bool
	Today    string
}

// Templates is a compiled prompt set.
type Templates struct {
	Version       string
	dateLayout    string
	system        *template.Template
	vision        *template.Template
	imageAnalysis *template.Template
	today         *template.Template
}

// Compile parses every template of cfg.
func Compile(cfg config.PromptConfig) (*Templates, error) {
	parse := func(name, src string) (*template.Template, error) {
		t, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", name, err)
		}
		return t, nil
	}

	t := &Templates{Version: cfg.Version, dateLayout: cfg.DateLayout}
	if t.dateLayout == "" {
		t.dateLayout = config.DefaultPrompts().DateLayout
	}

	var err error
	if t.system, err = parse("system", cfg.System); err != nil {
		return nil, err
	}
	if t.vision, err = parse("vision", cfg.Vision); err != nil {
		return nil, err
	}
	if t.imageAnalysis, err = parse("image_analysis", cfg.ImageAnalysis); err != nil {
		return nil, err
	}
	if t.today, err = parse("today", cfg.Today); err != nil {
		return nil, err
	}
	return t, nil
}

// Assembler builds prompts from the current template set. Templates can be
// swapped at runtime while requests are in flight.
type Assembler struct {
	templates atomic.Pointer[Templates]
	now       func() time.Time
}

// NewAssembler returns an assembler using t. now defaults to time.Now.
func NewAssembler(t *Templates, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	a := &Assembler{now: now}
	a.templates.Store(t)
	return a
}

// Swap installs a new template set.
func (a *Assembler) Swap(t *Templates) {
	a.templates.Store(t)
}

// Version returns the version of the active template set.
func (a *Assembler) Version() string {
	return a.templates.Load().Version
}

// SystemPrompt returns the base persona, followed by the vision addendum
// when the inquiry carries images, followed by the current date line.
func (a *Assembler) SystemPrompt(hasImage bool) (string, error) {
	t := a.templates.Load()
	data := a.data(t, hasImage)

	parts := []*template.Template{t.system}
	if hasImage {
		parts = append(parts, t.vision)
	}
	parts = append(parts, t.today)

	var sb strings.Builder
	for _, tmpl := range parts {
		s, err := render(tmpl, data)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// ImageAnalysisPrompt returns the persona used by the image analysis tool,
// closed by the current date line.
func (a *Assembler) ImageAnalysisPrompt() (string, error) {
	t := a.templates.Load()
	data := a.data(t, true)

	analysis, err := render(t.imageAnalysis, data)
	if err != nil {
		return "", err
	}
	today, err := render(t.today, data)
	if err != nil {
		return "", err
	}
	return analysis + today, nil
}

func (a *Assembler) data(t *Templates, hasImage bool) Data {
	return Data{
		HasImage: hasImage,
		Today:    a.now().Format(t.dateLayout),
	}
}

func render(t *template.Template, data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
