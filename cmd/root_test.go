package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "consume", "recalculate", "override", "show", "migrate", "status"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "tier-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRecalculateCommand_Flags(t *testing.T) {
	for _, name := range []string{"crn", "file", "kind", "event-type", "enqueue", "concurrency", "output"} {
		assert.NotNil(t, recalculateCmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "false", recalculateCmd.Flags().Lookup("enqueue").DefValue)
}

func TestShowCommand_Flags(t *testing.T) {
	flag := showCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
	assert.NotNil(t, showCmd.Flags().ShorthandLookup("o"))
}

func TestOverrideCommand_Flags(t *testing.T) {
	assert.NotNil(t, overrideCmd.Flags().Lookup("batch-id"))
	assert.NotNil(t, overrideCmd.Flags().Lookup("dry-run"))
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.True(t, rootCmd.SilenceUsage)
}
