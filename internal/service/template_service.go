// internal/service/template_service.go
package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// RenderTemplate substitutes {placeholder} tokens. A placeholder with no value
// is a rendering error, which callers treat as a per-contact failure, never as
// a batch failure.
func RenderTemplate(template string, data map[string]string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	result := template
	for k, v := range data {
		if v == "" {
			continue
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}

	if missing := placeholderPattern.FindString(result); missing != "" {
		return "", fmt.Errorf("unresolved placeholder %s", missing)
	}
	return result, nil
}

// CustomerData exposes the placeholder values available for a customer.
func CustomerData(c *model.Customer) map[string]string {
	return map[string]string{
		"name":       c.Name,
		"first_name": c.FirstName(),
		"phone":      c.Phone,
	}
}
