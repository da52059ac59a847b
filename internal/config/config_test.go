package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	kernel := cfg.Section("kernel")
	require.Equal(t, "unix", kernel.GetString("transport"))
	require.Equal(t, 256, kernel.GetInt("scheduler.history_size"))
}

func TestLoadReadsFileOverridingDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.yaml")
	content := "kernel:\n  transport: websocket\n  metrics_addr: \"127.0.0.1:9999\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	kernel := cfg.Section("kernel")
	require.Equal(t, "websocket", kernel.GetString("transport"))
	require.Equal(t, "127.0.0.1:9999", kernel.GetString("metrics_addr"))
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/kernel.yaml")
	require.Error(t, err)
}

func TestDefaultPipeName(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	ipc := cfg.Section("ipc")
	require.Equal(t, "/tmp/evkernel.sock", ipc.GetString("pipe_name"))
}

func TestSectionUnmarshalDecodesNestedStruct(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.yaml")
	content := "modules:\n  system:\n    heartbeat_interval_seconds: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	var out struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	}
	require.NoError(t, cfg.Section("modules.system").Unmarshal(&out))
	require.Equal(t, 7, out.HeartbeatIntervalSeconds)
}

func TestLLMLocalDefaultsMatchDocumentedKeyNames(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	llm := cfg.Section("llm.local")
	require.Equal(t, "fast", llm.GetString("mode"))
	require.Equal(t, "fast.bin", llm.GetString("fast_model"))
	require.Equal(t, "deep.bin", llm.GetString("deep_model"))
	require.Equal(t, 4096, llm.GetInt("context_length"))
	require.Equal(t, 512, llm.GetInt("n_batch"))
	require.False(t, llm.GetBool("use_gpu"))
}

func TestSectionUnmarshalOnZeroSectionIsNoop(t *testing.T) {
	var s Section
	var out struct {
		Foo string `yaml:"foo"`
	}
	require.NoError(t, s.Unmarshal(&out))
	require.Equal(t, "", out.Foo)
}
