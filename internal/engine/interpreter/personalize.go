package interpreter

import (
	"strings"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

// Variables returns the personalisation values for a contact. Core fields
// win over attributes of the same name.
func Variables(c domain.Contact) map[string]string {
	vars := make(map[string]string, len(c.Attributes)+3)
	for k, v := range c.Attributes {
		vars[k] = v
	}
	vars["first_name"] = c.FirstName
	vars["last_name"] = c.LastName
	vars["email"] = c.Email
	return vars
}

// Render substitutes literal {{token}} occurrences. Tokens without a value
// are left as written.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// RenderTemplate personalises a template's subject and body for a contact.
func RenderTemplate(tmpl domain.Template, c domain.Contact) (subject, html string) {
	vars := Variables(c)
	return Render(tmpl.Subject, vars), Render(tmpl.HTML, vars)
}
