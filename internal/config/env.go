package config

import (
	"os"
	"strings"
)

// LookupEnv looks name up as given, then upper-cased.
func LookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	return os.LookupEnv(strings.ToUpper(name))
}

// EnvOrDefault returns the value of name, or def when it is unset.
func EnvOrDefault(name, def string) string {
	if v, ok := LookupEnv(name); ok {
		return v
	}
	return def
}

// EnvEnabled reports whether name is set to "1" or "true".
func EnvEnabled(name string) bool {
	v, ok := LookupEnv(name)
	if !ok {
		return false
	}
	return v == "1" || strings.EqualFold(v, "true")
}
