// Package security provides input validation and log sanitization for
// request fields that reach index names and logs.
package security

import (
	"fmt"
	"regexp"
	"unicode"
)

// Validation limits.
const (
	MaxServiceNameLength = 64
	MaxURILength         = 4096
	MaxSearchNN          = 1000
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// serviceNameRegex matches valid service names: alphanumeric, hyphen, underscore.
var serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateServiceName validates a service name. Service names become
// similarity index collection names, so the charset is restricted.
func ValidateServiceName(name string) error {
	if name == "" {
		return &ValidationError{Field: "service", Constraint: "required"}
	}
	if len(name) > MaxServiceNameLength {
		return &ValidationError{
			Field:      "service",
			Value:      len(name),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxServiceNameLength),
		}
	}
	if !serviceNameRegex.MatchString(name) {
		return &ValidationError{
			Field:      "service",
			Value:      SanitizeForLog(name),
			Constraint: "must contain only alphanumeric characters, hyphens, and underscores, and start with alphanumeric",
		}
	}
	return nil
}

// ValidateURI validates a prediction uri.
func ValidateURI(uri string) error {
	if uri == "" {
		return &ValidationError{Field: "uri", Constraint: "required"}
	}
	if len(uri) > MaxURILength {
		return &ValidationError{
			Field:      "uri",
			Value:      len(uri),
			Constraint: fmt.Sprintf("maximum length is %d bytes", MaxURILength),
		}
	}
	for _, r := range uri {
		if unicode.IsControl(r) {
			return &ValidationError{
				Field:      "uri",
				Value:      SanitizeForLog(uri),
				Constraint: "must not contain control characters",
			}
		}
	}
	return nil
}

// ValidateSearchNN validates a requested neighbour count. 0 means default.
func ValidateSearchNN(nn int) error {
	if nn < 0 || nn > MaxSearchNN {
		return &ValidationError{
			Field:      "search_nn",
			Value:      nn,
			Constraint: fmt.Sprintf("must be between 0 and %d", MaxSearchNN),
		}
	}
	return nil
}
