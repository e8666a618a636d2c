package validation

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a structural problem with one field.
type ErrorKind string

// Structural error kinds.
const (
	// KindMissing marks a required field that is absent, null or blank.
	KindMissing ErrorKind = "missing"
	// KindTypeMismatch marks a present field whose representation does not
	// match its declared semantic type.
	KindTypeMismatch ErrorKind = "type_mismatch"
	// KindOutOfDomain marks a value outside its declared range, enumeration or format.
	KindOutOfDomain ErrorKind = "out_of_domain"
	// KindUnexpected marks a field the schema does not declare. Only reported
	// when unknown fields are rejected.
	KindUnexpected ErrorKind = "unexpected"
)

// FieldError describes one structural problem. Field is a dotted path with
// array indexes, for example "datasets[1].createDateTime".
type FieldError struct {
	Field    string    `json:"field"`
	Kind     ErrorKind `json:"kind"`
	Expected string    `json:"expected,omitempty"`
	Value    any       `json:"value,omitempty"`
	Message  string    `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors is the complete list of structural problems found in one pass.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	switch len(e) {
	case 0:
		return "no field errors"
	case 1:
		return e[0].Error()
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("%d field errors: %s", len(e), strings.Join(parts, "; "))
}

// HasKind reports whether any error is of the given kind.
func (e FieldErrors) HasKind(kind ErrorKind) bool {
	for _, fe := range e {
		if fe.Kind == kind {
			return true
		}
	}
	return false
}

// ForField returns the errors reported for an exact field path.
func (e FieldErrors) ForField(field string) FieldErrors {
	var out FieldErrors
	for _, fe := range e {
		if fe.Field == field {
			out = append(out, fe)
		}
	}
	return out
}
