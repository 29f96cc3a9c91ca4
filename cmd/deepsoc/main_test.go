package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootCmd_RegistersEveryRoleSubcommand(t *testing.T) {
	root := buildRootCmd()

	want := []string{"serve", "captain", "manager", "operator", "executor", "expert", "init"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestBuildInitCmd_RequiresAdminPasswordFlag(t *testing.T) {
	cmd := buildInitCmd()

	flag := cmd.Flags().Lookup("admin-password")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)

	flag = cmd.Flags().Lookup("admin-username")
	require.NotNil(t, flag)
	assert.Equal(t, "admin", flag.DefValue)
}

func TestGetEnv_FallsBackToDefault(t *testing.T) {
	t.Setenv("DEEPSOC_TEST_VAR", "")
	assert.Equal(t, "fallback", getEnv("DEEPSOC_TEST_VAR_UNSET", "fallback"))

	t.Setenv("DEEPSOC_TEST_VAR", "configured")
	assert.Equal(t, "configured", getEnv("DEEPSOC_TEST_VAR", "fallback"))
}
