// Package config loads the kernel's hierarchical configuration from a YAML
// file, environment overrides, and in-process defaults, mirroring the
// precedence order the host process's own config loader applies.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"evkernel/internal/kernelerr"
)

// Config wraps a viper instance and exposes typed, section-scoped accessors.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from path (if non-empty), overlays EVKERNEL_*
// environment variables, and applies defaults for every key this expansion
// recognizes. path may be empty, in which case only env vars and defaults
// apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EVKERNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, kernelerr.Wrap(kernelerr.CategoryConfig, kernelerr.CodeConfigInvalid,
				fmt.Sprintf("read config file %s", path), err)
		}
	}

	return &Config{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kernel.transport", "unix")
	v.SetDefault("kernel.metrics_addr", "127.0.0.1:9091")
	v.SetDefault("kernel.tracing.otlp_endpoint", "")
	v.SetDefault("kernel.scheduler.workers", 0) // 0 means runtime.NumCPU()
	v.SetDefault("kernel.scheduler.history_size", 256)
	v.SetDefault("ipc.pipe_name", "/tmp/evkernel.sock")
	v.SetDefault("llm.local.enabled", true)
	v.SetDefault("llm.local.mode", "fast")
	v.SetDefault("llm.local.model_path", "")
	v.SetDefault("llm.local.fast_model", "fast.bin")
	v.SetDefault("llm.local.deep_model", "deep.bin")
	v.SetDefault("llm.local.use_gpu", false)
	v.SetDefault("llm.local.gpu_layers", 0)
	v.SetDefault("llm.local.context_length", 4096)
	v.SetDefault("llm.local.n_batch", 512)
	v.SetDefault("llm.local.n_threads", 0) // 0 means runtime.NumCPU()
}

// Section returns a scoped view over keys nested under prefix (e.g. "kernel").
func (c *Config) Section(prefix string) Section {
	return Section{v: c.v, prefix: prefix}
}

// Section is a read-only, dotted-prefix scoped view of a Config.
type Section struct {
	v      *viper.Viper
	prefix string
}

func (s Section) key(name string) string { return s.prefix + "." + name }

// zero reports whether this Section has no backing viper instance, as with
// the placeholder Section handed to modules when no Config was supplied.
func (s Section) zero() bool { return s.v == nil }

func (s Section) GetString(name string) string {
	if s.zero() {
		return ""
	}
	return s.v.GetString(s.key(name))
}

func (s Section) GetBool(name string) bool {
	if s.zero() {
		return false
	}
	return s.v.GetBool(s.key(name))
}

func (s Section) GetInt(name string) int {
	if s.zero() {
		return 0
	}
	return s.v.GetInt(s.key(name))
}

// IsSet reports whether name has a value from any source viper consults,
// including a default registered in setDefaults.
func (s Section) IsSet(name string) bool {
	if s.zero() {
		return false
	}
	return s.v.IsSet(s.key(name))
}

// Unmarshal decodes this section's keys into out, a pointer to a struct with
// `yaml` tags. Modules that want more than scalar Get* accessors use this to
// pull their whole passthrough subsection in one step, the same way the rest
// of the config file round-trips through YAML.
func (s Section) Unmarshal(out interface{}) error {
	raw, err := yaml.Marshal(s.rawMap())
	if err != nil {
		return kernelerr.Wrap(kernelerr.CategoryConfig, kernelerr.CodeConfigInvalid, "marshal section "+s.prefix, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return kernelerr.Wrap(kernelerr.CategoryConfig, kernelerr.CodeConfigInvalid, "unmarshal section "+s.prefix, err)
	}
	return nil
}

// rawMap walks viper's full settings tree down to this section's dotted
// prefix, returning an empty map rather than an error if any segment is
// absent or not itself a map.
func (s Section) rawMap() map[string]interface{} {
	if s.zero() {
		return map[string]interface{}{}
	}
	cur := s.v.AllSettings()
	for _, part := range strings.Split(s.prefix, ".") {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			return map[string]interface{}{}
		}
		cur = next
	}
	return cur
}
