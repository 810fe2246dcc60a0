package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
)

func TestConfigCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--server-addr", ":9999", "--output-type", "nats"})

	require.NoError(t, root.Execute())

	var got config.Configuration
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, ":9999", got.Server.Addr)
	assert.Equal(t, config.OutputNATS, got.Output.Type)
	assert.Equal(t, config.Default().Simulate, got.Simulate)
}
