// Package mailtext renders the plain-text bodies of outgoing emails.
package mailtext

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.tmpl
var fs embed.FS

var templates = template.Must(template.ParseFS(fs, "*.tmpl"))

// ActivationSubject is the subject line of the activation email.
const ActivationSubject = "Please activate your account"

// Activation renders the activation email body for link.
func Activation(link string) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "activation.txt.tmpl", struct{ Link string }{link}); err != nil {
		return "", fmt.Errorf("render activation email: %w", err)
	}
	return buf.String(), nil
}
