// Package agents resolves configured agents, checks whether they can chat and
// validates the global variables users supply for them.
package agents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aihub/agentdesk/internal/domain"
)

// VariableIssue describes one invalid global variable value.
type VariableIssue struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (i VariableIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Key, i.Message)
}

// VariablesError carries every issue found while validating variables.
type VariablesError struct {
	Issues []VariableIssue
}

func (e *VariablesError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid variables: " + strings.Join(parts, "; ")
}

// ValidateVariables checks values against the agent's global variable
// definitions. It returns the values with defaults filled in; keys the agent
// does not define are passed through unchanged.
func ValidateVariables(defs []domain.GlobalVariable, values map[string]string) (map[string]string, []VariableIssue) {
	out := make(map[string]string, len(values)+len(defs))
	for k, v := range values {
		out[k] = v
	}

	var issues []VariableIssue
	fail := func(key, format string, args ...any) {
		issues = append(issues, VariableIssue{Key: key, Message: fmt.Sprintf(format, args...)})
	}

	for _, def := range defs {
		v := strings.TrimSpace(out[def.Key])
		if v == "" && def.DefaultValue != "" {
			v = def.DefaultValue
		}
		if v == "" {
			delete(out, def.Key)
			if def.Required {
				fail(def.Key, "%s is required", label(def))
			}
			continue
		}
		out[def.Key] = v

		switch def.Type {
		case domain.VariableNumber:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(def.Key, "%s must be a number", label(def))
				continue
			}
			if val := def.Validation; val != nil {
				if val.Min != nil && n < *val.Min {
					fail(def.Key, "%s must be at least %g", label(def), *val.Min)
				}
				if val.Max != nil && n > *val.Max {
					fail(def.Key, "%s must be at most %g", label(def), *val.Max)
				}
			}
		case domain.VariableBoolean:
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(def.Key, "%s must be true or false", label(def))
				continue
			}
			out[def.Key] = strconv.FormatBool(b)
		case domain.VariableSelect:
			if !contains(def.Options, v) {
				fail(def.Key, "%s must be one of %s", label(def), strings.Join(def.Options, ", "))
			}
		default:
			val := def.Validation
			if val == nil {
				continue
			}
			if val.MaxLength > 0 && utf8.RuneCountInString(v) > val.MaxLength {
				fail(def.Key, "%s must be at most %d characters", label(def), val.MaxLength)
			}
			if val.Pattern != "" {
				re, err := regexp.Compile(val.Pattern)
				switch {
				case err != nil:
					fail(def.Key, "%s has an invalid pattern", label(def))
				case !re.MatchString(v):
					fail(def.Key, "%s has an invalid format", label(def))
				}
			}
		}
	}
	return out, issues
}

// ToAny converts validated string values into the variables map sent to
// FastGPT. Number and boolean variables are sent typed.
func ToAny(defs []domain.GlobalVariable, values map[string]string) map[string]any {
	if len(values) == 0 {
		return nil
	}
	types := make(map[string]domain.VariableType, len(defs))
	for _, d := range defs {
		types[d.Key] = d.Type
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch types[k] {
		case domain.VariableNumber:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = n
				continue
			}
		case domain.VariableBoolean:
			if b, err := strconv.ParseBool(v); err == nil {
				out[k] = b
				continue
			}
		}
		out[k] = v
	}
	return out
}

func label(def domain.GlobalVariable) string {
	if def.Label != "" {
		return def.Label
	}
	return def.Key
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
