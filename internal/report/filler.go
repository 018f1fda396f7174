package report

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// Filler merges a flat placeholder map into a document template.
type Filler interface {
	Fill(values map[string]string) ([]byte, error)
}

// templateFiller renders Go text templates. Placeholders reference flat
// keys as {{index . "U101_1"}} or, for simple names, {{.student_name}}.
type templateFiller struct {
	tmpl *template.Template
}

// NewTemplateFiller parses the template file at path.
func NewTemplateFiller(path string) (Filler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return NewTemplateFillerFromBytes(path, data)
}

func NewTemplateFillerFromBytes(name string, data []byte) (Filler, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &templateFiller{tmpl: tmpl}, nil
}

func (f *templateFiller) Fill(values map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}
