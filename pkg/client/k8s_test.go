package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://127.0.0.1:6443
    insecure-skip-tls-verify: true
  name: test
contexts:
- context:
    cluster: test
    user: test
  name: test
current-context: test
users:
- name: test
  user:
    token: abc
`

func TestKubeConfigPath(t *testing.T) {
	assert.Equal(t, "/explicit", kubeConfigPath("/explicit"))

	t.Setenv("KUBECONFIG", "/from/env")
	assert.Equal(t, "/from/env", kubeConfigPath(""))
}

func TestCreateClientFromKubeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(kubeconfig), 0600))

	m := NewK8sManager(path)
	require.NoError(t, m.CreateClient())
	assert.NotNil(t, m.GetK8sClientSet())
	assert.Equal(t, "https://127.0.0.1:6443", m.GetK8sConfig().Host)
}
