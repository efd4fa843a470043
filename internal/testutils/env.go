// Package testutils holds small helpers shared by package tests.
package testutils

import (
	"os"
	"testing"
)

// SetEnv sets the given environment variables and returns a cleanup
// function restoring the previous values.
func SetEnv(t *testing.T, vars map[string]string) func() {
	t.Helper()

	previous := map[string]*string{}
	for key, value := range vars {
		if old, ok := os.LookupEnv(key); ok {
			previous[key] = &old
		} else {
			previous[key] = nil
		}
		os.Setenv(key, value)
	}

	return func() {
		for key, old := range previous {
			if old == nil {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, *old)
			}
		}
	}
}
