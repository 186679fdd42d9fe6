package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/scttfrdmn/barkuni/internal/cluster"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const kubeconfigYAML = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://203.0.113.10:6443
  name: test
contexts:
- context:
    cluster: test
    user: admin
  name: test
current-context: test
users:
- name: admin
  user:
    token: test-token
`

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--addr", "127.0.0.1:8080", "--namespace", "default"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "default", cfg.Cluster.Namespace)
	assert.Empty(t, cfg.Cluster.Kubeconfig)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr)
	assert.Equal(t, "kube-system", cfg.Cluster.Namespace)
}

func TestPodLister_UnresolvedCredentials(t *testing.T) {
	logger = zaptest.NewLogger(t)
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	lister := podLister(config.ClusterConfig{Kubeconfig: filepath.Join(t.TempDir(), "missing")})

	_, err := lister.ListPodNames(context.Background())
	assert.Error(t, err)
}

func TestPodLister_Kubeconfig(t *testing.T) {
	logger = zaptest.NewLogger(t)
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(kubeconfigYAML), 0o600))

	lister := podLister(config.ClusterConfig{Kubeconfig: path, Namespace: "default"})

	pl, ok := lister.(*cluster.PodLister)
	require.True(t, ok)
	assert.Equal(t, "default", pl.Namespace())
}
