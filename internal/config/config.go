// Package config loads dialogd's process configuration via viper, mapping
// the YAML/env schema onto pkg/dialog.Config plus the provider selection
// needed to wire a dialog.CapabilityRegistry: four capability modules
// (vad/asr/llm/tts) plus activation/transport/global sections.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// ModuleConfig is one `modules.<category>` block: which adapter to
// instantiate and its adapter-specific settings plus the env var holding
// its API key, so main.go never has to special-case a provider by name to
// find its secret.
type ModuleConfig struct {
	Enabled     bool
	AdapterType string
	APIKeyEnv   string
	Settings    dialog.ProviderConfig
}

// TransportConfig is the `transport` block.
type TransportConfig struct {
	Host           string
	Port           int
	MaxMessageSize int
	MetricsPort    int
}

// AppConfig is the full process configuration: the four capability module
// selections, the Turn/Session tunables (as a dialog.Config), transport and
// the global settings section.
type AppConfig struct {
	VAD ModuleConfig
	ASR ModuleConfig
	LLM ModuleConfig
	TTS ModuleConfig

	Dialog    dialog.Config
	Transport TransportConfig
	LogLevel  string
}

// Load reads configuration from an optional file at path (if non-empty and
// present) layered under environment variables and built-in defaults.
// Every key is also reachable via its upper-snake-case env var equivalent
// (e.g. modules.llm.adapter_type -> MODULES_LLM_ADAPTER_TYPE) through
// viper's dot-to-underscore replacer.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	setDefaults(v)
	bindEnv(v)

	cfg := &AppConfig{
		VAD: moduleConfig(v, "vad"),
		ASR: moduleConfig(v, "asr"),
		LLM: moduleConfig(v, "llm"),
		TTS: moduleConfig(v, "tts"),

		Transport: TransportConfig{
			Host:           v.GetString("transport.host"),
			Port:           v.GetInt("transport.port"),
			MaxMessageSize: v.GetInt("transport.max_message_size"),
			MetricsPort:    v.GetInt("transport.metrics_port"),
		},
		LogLevel: v.GetString("global_settings.log_level"),
	}

	cfg.Dialog = dialog.DefaultConfig()
	cfg.Dialog.Voice = dialog.Voice(v.GetString("dialog.voice"))
	cfg.Dialog.Language = dialog.Language(v.GetString("dialog.language"))
	cfg.Dialog.VADThreshold = v.GetFloat64("dialog.vad_threshold")
	cfg.Dialog.EOSSilenceMS = v.GetInt("dialog.eos_silence_ms")
	cfg.Dialog.MaxSegmentMS = v.GetInt("dialog.max_segment_ms")
	cfg.Dialog.MaxContextMessages = v.GetInt("dialog.max_context_messages")
	cfg.Dialog.OutboundQueueCap = v.GetInt("dialog.outbound_queue_cap")
	cfg.Dialog.MinWordsToInterrupt = v.GetInt("dialog.min_words_to_interrupt")
	cfg.Dialog.ASRTimeout = v.GetDuration("dialog.asr_timeout")
	cfg.Dialog.LLMFirstTokenTimeout = v.GetDuration("dialog.llm_first_token_timeout")
	cfg.Dialog.LLMPerTokenTimeout = v.GetDuration("dialog.llm_per_token_timeout")
	cfg.Dialog.TTSTimeout = v.GetDuration("dialog.tts_timeout")
	cfg.Dialog.ProviderRetries = v.GetInt("dialog.provider_retries")
	cfg.Dialog.EchoSuppressionEnabled = v.GetBool("dialog.echo_suppression_enabled")

	cfg.Dialog.EnablePromptActivation = v.GetBool("activation_settings.enable_prompt_activation")
	cfg.Dialog.ActivationKeywords = v.GetStringSlice("activation_settings.activation_keywords")
	cfg.Dialog.ActivationTimeoutSeconds = v.GetInt("activation_settings.activation_timeout_seconds")
	cfg.Dialog.ActivationReply = v.GetString("activation_settings.activation_reply")
	cfg.Dialog.DeactivationReply = v.GetString("activation_settings.deactivation_reply")

	return cfg, nil
}

func moduleConfig(v *viper.Viper, category string) ModuleConfig {
	prefix := "modules." + category
	settings := dialog.ProviderConfig{}
	adapter := v.GetString(prefix + ".adapter_type")
	if sub := v.Sub(prefix + ".config." + adapter); sub != nil {
		for k, val := range sub.AllSettings() {
			settings[k] = val
		}
	}
	return ModuleConfig{
		Enabled:     v.GetBool(prefix + ".enabled"),
		AdapterType: adapter,
		APIKeyEnv:   v.GetString(prefix + ".api_key_env_var"),
		Settings:    settings,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("modules.vad.enabled", true)
	v.SetDefault("modules.vad.adapter_type", "energy")
	v.SetDefault("modules.asr.enabled", true)
	v.SetDefault("modules.asr.adapter_type", "groq")
	v.SetDefault("modules.asr.api_key_env_var", "GROQ_API_KEY")
	v.SetDefault("modules.llm.enabled", true)
	v.SetDefault("modules.llm.adapter_type", "anthropic")
	v.SetDefault("modules.llm.api_key_env_var", "ANTHROPIC_API_KEY")
	v.SetDefault("modules.tts.enabled", true)
	v.SetDefault("modules.tts.adapter_type", "lokutor")
	v.SetDefault("modules.tts.api_key_env_var", "LOKUTOR_API_KEY")

	v.SetDefault("activation_settings.enable_prompt_activation", false)
	v.SetDefault("activation_settings.activation_keywords", []string{})
	v.SetDefault("activation_settings.activation_timeout_seconds", 0)
	v.SetDefault("activation_settings.activation_reply", "I'm listening.")
	v.SetDefault("activation_settings.deactivation_reply", "Okay, let me know if you need anything else.")

	v.SetDefault("transport.host", "0.0.0.0")
	v.SetDefault("transport.port", 8080)
	v.SetDefault("transport.max_message_size", 1<<20)
	v.SetDefault("transport.metrics_port", 9090)

	v.SetDefault("global_settings.log_level", "info")

	d := dialog.DefaultConfig()
	v.SetDefault("dialog.voice", string(d.Voice))
	v.SetDefault("dialog.language", string(d.Language))
	v.SetDefault("dialog.vad_threshold", d.VADThreshold)
	v.SetDefault("dialog.eos_silence_ms", d.EOSSilenceMS)
	v.SetDefault("dialog.max_segment_ms", d.MaxSegmentMS)
	v.SetDefault("dialog.max_context_messages", d.MaxContextMessages)
	v.SetDefault("dialog.outbound_queue_cap", d.OutboundQueueCap)
	v.SetDefault("dialog.min_words_to_interrupt", d.MinWordsToInterrupt)
	v.SetDefault("dialog.asr_timeout", d.ASRTimeout)
	v.SetDefault("dialog.llm_first_token_timeout", d.LLMFirstTokenTimeout)
	v.SetDefault("dialog.llm_per_token_timeout", d.LLMPerTokenTimeout)
	v.SetDefault("dialog.tts_timeout", d.TTSTimeout)
	v.SetDefault("dialog.provider_retries", d.ProviderRetries)
	v.SetDefault("dialog.echo_suppression_enabled", d.EchoSuppressionEnabled)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("modules.vad.adapter_type", "VAD_ADAPTER")
	v.BindEnv("modules.asr.adapter_type", "ASR_ADAPTER")
	v.BindEnv("modules.asr.api_key_env_var", "ASR_API_KEY_ENV_VAR")
	v.BindEnv("modules.llm.adapter_type", "LLM_ADAPTER")
	v.BindEnv("modules.llm.api_key_env_var", "LLM_API_KEY_ENV_VAR")
	v.BindEnv("modules.tts.adapter_type", "TTS_ADAPTER")
	v.BindEnv("modules.tts.api_key_env_var", "TTS_API_KEY_ENV_VAR")

	v.BindEnv("transport.host", "DIALOGD_HOST")
	v.BindEnv("transport.port", "DIALOGD_PORT")
	v.BindEnv("transport.max_message_size", "DIALOGD_MAX_MESSAGE_SIZE")
	v.BindEnv("transport.metrics_port", "DIALOGD_METRICS_PORT")

	v.BindEnv("global_settings.log_level", "LOG_LEVEL")

	v.BindEnv("activation_settings.enable_prompt_activation", "ENABLE_PROMPT_ACTIVATION")
	v.BindEnv("activation_settings.activation_timeout_seconds", "ACTIVATION_TIMEOUT_SECONDS")
}

// ResolveAPIKey reads a module's configured api_key_env_var through lookup
// (main.go passes os.LookupEnv) and returns its value. An unset or empty
// variable is an error, so main.go can fail fast with a clear message
// instead of building a provider with an empty key; a module with no
// api_key_env_var resolves to an empty key without error.
func ResolveAPIKey(m ModuleConfig, lookup func(string) (string, bool)) (string, error) {
	if m.APIKeyEnv == "" {
		return "", nil
	}
	val, ok := lookup(m.APIKeyEnv)
	if !ok || val == "" {
		return "", fmt.Errorf("config: environment variable %s is required for adapter %q", m.APIKeyEnv, m.AdapterType)
	}
	return val, nil
}
