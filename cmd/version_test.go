package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Equal(t, version, GetVersion())
	assert.Equal(t, "aisbridge version: "+version, GetVersionWithPrefix())
	assert.Contains(t, GetFullVersionInfo(), "Commit: "+commit)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["version"])

	for _, flag := range []string{"config", "log-level", "stream-url", "metrics-port", "db-url"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
