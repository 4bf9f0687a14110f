package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "provision", "clean", "stop", "test", "unlock"} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}

func TestCleanRejectsUnknownScope(t *testing.T) {
	rootCmd.SetArgs([]string{"clean", "--scope", "bogus"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")
}

func TestTestRequiresProjectArg(t *testing.T) {
	rootCmd.SetArgs([]string{"test"})

	err := rootCmd.Execute()
	require.Error(t, err)
}
