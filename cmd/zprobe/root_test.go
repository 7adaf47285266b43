package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile = ""
		logLevel = "info"
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSettingsCommand(t *testing.T) {
	name := filepath.Join(t.TempDir(), "zprobe.hcl")
	require.NoError(t, os.WriteFile(name, []byte(`
zprobe {
  enable        = true
  probe_pin     = "sim"
  slow_feedrate = 2
  max_z         = 30
}
`), 0o644))

	out, err := execute(t, "settings", "--config", name, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "M670 S2.00 K100.00 R0.00 Z30.00 H5.00 D0.00\n")
}

func TestSettingsCommand_Errors(t *testing.T) {
	_, err := execute(t, "settings", "--log-level", "loud")
	assert.Error(t, err)

	_, err = execute(t, "settings", "--config", filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
