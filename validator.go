package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the layout the spreadsheet expects, e.g. "2024-01-01 10:00 AM".
const TimestampLayout = "2006-01-02 03:04 PM"

var (
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	alphaPattern = regexp.MustCompile(`^[a-zA-Z\s]{3,}$`)
)

// FieldError is a single violated rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists every rule a submission violated, in rule order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation passed"
	}

	return v[0].Message
}

// rule checks a field value, trimmed unless exact is set. Missing fields are
// checked as "".
type rule struct {
	field    string
	message  string
	optional bool
	exact    bool
	check    func(value string) bool
}

type Validator struct {
	rules map[JobKind][]rule
}

type ValidatorOption func(v *Validator)

// RequireTimestamp makes the timestamp field mandatory for every kind.
func RequireTimestamp() ValidatorOption {
	return func(v *Validator) {
		for kind, rules := range v.rules {
			for i := range rules {
				if rules[i].field == "timestamp" {
					rules[i].optional = false
				}
			}
			v.rules[kind] = rules
		}
	}
}

func NewValidator(options ...ValidatorOption) *Validator {
	v := &Validator{
		rules: map[JobKind][]rule{
			JobCallback: {
				phoneRule(),
				formTypeRule(JobCallback),
				timestampRule(),
			},
			JobProject: {
				alphaRule("name", "Name must be at least 3 alphabetic characters"),
				phoneRule(),
				alphaRule("branch", "Branch must be at least 3 alphabetic characters"),
				{
					field:   "project",
					message: "Project description must be at least 10 characters",
					check: func(value string) bool {
						return utf8.RuneCountInString(value) >= 10
					},
				},
				formTypeRule(JobProject),
				timestampRule(),
			},
		},
	}

	for _, option := range options {
		option(v)
	}

	return v
}

// Validate checks raw against the rules of kind and returns the trimmed payload.
// formType is checked but not part of the returned payload.
func (v *Validator) Validate(kind JobKind, raw map[string]interface{}) (map[string]string, ValidationErrors) {
	rules, ok := v.rules[kind]
	if !ok {
		return nil, ValidationErrors{{Field: "formType", Message: fmt.Sprintf("Invalid formType: %q is not supported", kind)}}
	}

	var errs ValidationErrors
	payload := make(map[string]string, len(rules))

	for _, r := range rules {
		value, present, isString := lookup(raw, r.field)
		if present && !isString {
			errs = append(errs, FieldError{Field: r.field, Message: fmt.Sprintf("Invalid %s: Must be a string", r.field)})
			continue
		}

		if !r.exact {
			value = strings.TrimSpace(value)
		}

		if value == "" && r.optional {
			continue
		}

		if !r.check(value) {
			errs = append(errs, FieldError{Field: r.field, Message: r.message})
			continue
		}

		if r.field == "formType" {
			continue
		}

		if r.field == "timestamp" {
			value = NormalizeTimestamp(value)
		}

		payload[r.field] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return payload, nil
}

// NormalizeTimestamp rewrites RFC 3339 values into TimestampLayout and leaves
// anything else untouched.
func NormalizeTimestamp(value string) string {
	if _, err := time.Parse(TimestampLayout, value); err == nil {
		return value
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format(TimestampLayout)
	}

	return value
}

func lookup(raw map[string]interface{}, field string) (value string, present bool, isString bool) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", false, true
	}

	s, ok := v.(string)
	if !ok {
		return "", true, false
	}

	return s, true, true
}

func phoneRule() rule {
	return rule{
		field:   "phone",
		message: "Invalid phone: Must be a 10-digit number",
		check:   phonePattern.MatchString,
	}
}

func alphaRule(field, message string) rule {
	return rule{
		field:   field,
		message: message,
		check:   alphaPattern.MatchString,
	}
}

func formTypeRule(kind JobKind) rule {
	return rule{
		field:   "formType",
		message: fmt.Sprintf("Invalid formType: Must be %q", kind),
		exact:   true,
		check: func(value string) bool {
			return value == string(kind)
		},
	}
}

func timestampRule() rule {
	return rule{
		field:    "timestamp",
		message:  "Invalid timestamp: Must match YYYY-MM-DD hh:mm AM|PM",
		optional: true,
		check: func(value string) bool {
			if _, err := time.Parse(TimestampLayout, value); err == nil {
				return true
			}

			_, err := time.Parse(time.RFC3339, value)
			return err == nil
		},
	}
}
