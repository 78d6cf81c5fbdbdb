package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"serve", "check", "map"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "retell-relay", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = serveCmd.Flags().Lookup("no-warm-up")
	require.NotNil(t, flag, "serve command should have --no-warm-up flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestCheckCommand_Flags(t *testing.T) {
	assert.NotNil(t, checkCmd.Flags().Lookup("json"))
}

func TestMapCommand_Flags(t *testing.T) {
	for _, name := range []string{"offline", "json"} {
		assert.NotNil(t, mapCmd.Flags().Lookup(name), "map should have --%s flag", name)
	}
}
