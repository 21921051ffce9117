package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/spiffcs/deprecator/internal/model"
)

// Months coerces a rule parameter to a whole number of months. Fractions
// truncate toward zero.
func Months(rule Name, param Parameter) (int, error) {
	raw := strings.TrimSpace(string(param))
	if raw == "" {
		return 0, &model.ConfigurationError{Rule: string(rule), Reason: "a number of months is required"}
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &model.ConfigurationError{Rule: string(rule), Reason: "months must be a number, got " + strconv.Quote(raw)}
	}
	if f < 0 {
		return 0, &model.ConfigurationError{Rule: string(rule), Reason: "months must not be negative, got " + raw}
	}
	if f > math.MaxInt32 {
		return 0, &model.ConfigurationError{Rule: string(rule), Reason: "months is too large, got " + raw}
	}
	return int(f), nil
}

// ParseSpecs converts command line rule specs such as "all" or
// "majorVersions=6" into a Config. Rule names are not checked against a
// catalog here.
func ParseSpecs(specs []string) (Config, error) {
	cfg := Config{}
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		name, value, _ := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &model.ConfigurationError{Reason: "rule spec " + strconv.Quote(spec) + " has no rule name"}
		}
		if _, dup := cfg[Name(name)]; dup {
			return nil, &model.ConfigurationError{Rule: name, Reason: "rule specified more than once"}
		}
		cfg[Name(name)] = Parameter(strings.TrimSpace(value))
	}
	return cfg, nil
}
