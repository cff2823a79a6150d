// Package renderer writes deployment descriptors from templates. The
// launcher treats templating as a fixed collaborator: a template file plus a
// context struct in, a rendered file out.
package renderer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Render executes the template at templatePath with data and writes the
// result to destPath. Missing context keys fail the render instead of
// producing empty strings, so a descriptor can never be rendered with holes.
func Render(templatePath string, data any, destPath string) error {
	tmpl, err := template.New(filepath.Base(templatePath)).
		Option("missingkey=error").
		ParseFiles(templatePath)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", templatePath, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render template %s: %w", templatePath, err)
	}
	if err := os.WriteFile(destPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write descriptor %s: %w", destPath, err)
	}
	return nil
}
