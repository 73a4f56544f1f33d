package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const topology = `
routers:
  r1:
    ospf:
      router-id: 1.1.1.1
      area 0:
        interface eth0:
          address: 10.0.0.1/30
          network-type: point-to-point
  r2:
    ospf:
      router-id: 2.2.2.2
      area 0:
        interface eth0:
          address: 10.0.0.2/30
          network-type: point-to-point
segments:
  link:
    type: point-to-point
    delay: 2ms
    attach: [r1:eth0, r2:eth0]
`

func writeTopology(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(topology), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidate(t *testing.T) {
	path := writeTopology(t)

	out, _, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 routers, 2 interfaces, 1 segments")
}

func TestValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus: 1\n"), 0o644))

	_, _, err := execute(t, "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown top level key: bogus")
}

func TestRunVirtualTime(t *testing.T) {
	path := writeTopology(t)
	logFile := filepath.Join(t.TempDir(), "logs", "ospfsim.json")

	out, logs, err := execute(t, "run", "-c", path, "--for", "2m", "--log-file", logFile)
	require.NoError(t, err)

	assert.Contains(t, out, "NBR STATE")
	assert.Contains(t, out, "2.2.2.2")
	assert.Contains(t, out, "Full")
	assert.Contains(t, out, "0 malformed")
	assert.Contains(t, logs, "topology converged")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"neighbor state changed"`)
}

func TestRunRealtime(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeTopology(t)

	out, _, err := execute(t, "run", "-c", path, "--realtime", "--for", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, "ROUTER")
	assert.Contains(t, out, "r1")
}

func TestRunFlagErrors(t *testing.T) {
	path := writeTopology(t)

	_, _, err := execute(t, "run", "-c", path, "--metrics-addr", ":0")
	assert.ErrorContains(t, err, "--metrics-addr needs --realtime")

	_, _, err = execute(t, "run", "-c", path, "--for", "0")
	assert.ErrorContains(t, err, "--for must be positive")

	_, _, err = execute(t, "run", "-c", path, "--log-level", "loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}
