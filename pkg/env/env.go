package env

import "os"

// Get reads an environment variable, falling back when the key is unset or
// exported blank. Blank counts as unset so an empty LOG_FORMAT in a compose
// file does not silently disable the default.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
