// Command dialogd wires the configured capability providers into a
// dialog.CapabilityRegistry, starts the metrics endpoint, and drives one
// local Session off the machine's microphone/speakers via malgo, selecting
// providers by config-driven registry lookup rather than a hardcoded
// switch statement. A wire transport that accepts many remote clients is
// out of scope for this binary; this is the local demo harness.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/vox-dialog/dialogd/internal/config"
	"github.com/vox-dialog/dialogd/internal/logging"
	"github.com/vox-dialog/dialogd/internal/metrics"
	"github.com/vox-dialog/dialogd/pkg/dialog"
	"github.com/vox-dialog/dialogd/pkg/providers/asr"
	"github.com/vox-dialog/dialogd/pkg/providers/llm"
	"github.com/vox-dialog/dialogd/pkg/providers/tts"
)

const sampleRate = 16000

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	cfgPath := os.Getenv("DIALOGD_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Dialog.SampleRate = sampleRate

	logger := logging.New(cfg.LogLevel)

	rec, metricsHandler, err := metrics.Setup("dialogd")
	if err != nil {
		logger.Warn("metrics setup failed, continuing without instrumentation", "err", err)
		rec = metrics.Global()
	} else {
		go serveMetrics(cfg.Transport.MetricsPort, metricsHandler, logger)
	}

	registry := buildRegistry()

	asrProvider, llmProvider, ttsProvider, vadProvider := instantiateProviders(registry, cfg, logger)

	logger.Info("capabilities configured",
		"asr", cfg.ASR.AdapterType, "llm", cfg.LLM.AdapterType,
		"tts", cfg.TTS.AdapterType, "vad", cfg.VAD.AdapterType)

	if cfg.Dialog.SystemPrompt == "" {
		cfg.Dialog.SystemPrompt = "You are a helpful and concise voice assistant. Use short sentences suitable for speech."
	}

	sessions := dialog.NewSessionRegistry()
	session := dialog.NewSession("local-mic", cfg.Dialog, asrProvider, llmProvider, ttsProvider, vadProvider, logger)
	session.SetMetricsRecorder(rec)
	sessions.Create(session)
	defer sessions.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mctx, device := runMicLoop(ctx, session, logger)
	defer device.Uninit()
	defer mctx.Uninit()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down...")
}

func serveMetrics(port int, handler http.Handler, logger dialog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

// buildRegistry registers every adapter this build knows how to construct.
// Factories read their secret from the "api_key" entry of the ProviderConfig
// they receive: the config.<adapter_type> map carries no process env, so
// instantiateProviders resolves the key and merges it in before the call.
func buildRegistry() *dialog.CapabilityRegistry {
	r := dialog.NewCapabilityRegistry()

	r.RegisterVAD("energy", func(c dialog.ProviderConfig) (dialog.VADProvider, error) {
		threshold, _ := c["threshold"].(float64)
		if threshold == 0 {
			threshold = 0.02
		}
		return dialog.NewRMSVAD(threshold), nil
	})

	r.RegisterASR("groq", func(c dialog.ProviderConfig) (dialog.ASRProvider, error) {
		return asr.NewGroqASR(stringField(c, "api_key"), stringField(c, "model")), nil
	})
	r.RegisterASR("openai", func(c dialog.ProviderConfig) (dialog.ASRProvider, error) {
		return asr.NewOpenAIASR(stringField(c, "api_key"), stringField(c, "model")), nil
	})
	r.RegisterASR("deepgram", func(c dialog.ProviderConfig) (dialog.ASRProvider, error) {
		return asr.NewDeepgramASR(stringField(c, "api_key")), nil
	})
	r.RegisterASR("assemblyai", func(c dialog.ProviderConfig) (dialog.ASRProvider, error) {
		return asr.NewAssemblyAIASR(stringField(c, "api_key")), nil
	})

	r.RegisterLLM("anthropic", func(c dialog.ProviderConfig) (dialog.LLMProvider, error) {
		return llm.NewAnthropicLLM(stringField(c, "api_key"), stringField(c, "model")), nil
	})
	r.RegisterLLM("openai", func(c dialog.ProviderConfig) (dialog.LLMProvider, error) {
		return llm.NewOpenAILLM(stringField(c, "api_key"), stringField(c, "model")), nil
	})
	r.RegisterLLM("google", func(c dialog.ProviderConfig) (dialog.LLMProvider, error) {
		return llm.NewGoogleLLM(context.Background(), stringField(c, "api_key"), stringField(c, "model"))
	})
	r.RegisterLLM("ollama", func(c dialog.ProviderConfig) (dialog.LLMProvider, error) {
		return llm.NewOllamaLLM(stringField(c, "host"), stringField(c, "model"))
	})

	r.RegisterTTS("lokutor", func(c dialog.ProviderConfig) (dialog.TTSProvider, error) {
		return tts.NewLokutorTTS(stringField(c, "api_key")), nil
	})
	r.RegisterTTS("elevenlabs", func(c dialog.ProviderConfig) (dialog.TTSProvider, error) {
		return tts.NewElevenLabsTTS(stringField(c, "api_key"), stringField(c, "voice_id"), stringField(c, "model")), nil
	})

	return r
}

func stringField(c dialog.ProviderConfig, key string) string {
	s, _ := c[key].(string)
	return s
}

// instantiateProviders resolves each module's API key from its configured
// env var, merges it into the provider's settings map under "api_key", and
// asks the registry to build it. A disabled module or a missing required
// key is fatal at startup: there is no sensible degraded mode for a voice
// pipeline missing one of its four capabilities.
func instantiateProviders(r *dialog.CapabilityRegistry, cfg *config.AppConfig, logger dialog.Logger) (dialog.ASRProvider, dialog.LLMProvider, dialog.TTSProvider, dialog.VADProvider) {
	for name, m := range map[string]config.ModuleConfig{"vad": cfg.VAD, "asr": cfg.ASR, "llm": cfg.LLM, "tts": cfg.TTS} {
		if !m.Enabled {
			log.Fatalf("%s: module is disabled", name)
		}
	}

	vadProvider, err := r.CreateVAD(cfg.VAD.AdapterType, cfg.VAD.Settings)
	if err != nil {
		log.Fatalf("vad: %v", err)
	}

	asrSettings := withAPIKey(cfg.ASR)
	asrProvider, err := r.CreateASR(cfg.ASR.AdapterType, asrSettings)
	if err != nil {
		log.Fatalf("asr: %v", err)
	}

	llmSettings := withAPIKey(cfg.LLM)
	llmProvider, err := r.CreateLLM(cfg.LLM.AdapterType, llmSettings)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	ttsSettings := withAPIKey(cfg.TTS)
	ttsProvider, err := r.CreateTTS(cfg.TTS.AdapterType, ttsSettings)
	if err != nil {
		log.Fatalf("tts: %v", err)
	}

	return asrProvider, llmProvider, ttsProvider, vadProvider
}

func withAPIKey(m config.ModuleConfig) dialog.ProviderConfig {
	settings := dialog.ProviderConfig{}
	for k, v := range m.Settings {
		settings[k] = v
	}
	key, err := config.ResolveAPIKey(m, os.LookupEnv)
	if err != nil {
		log.Fatal(err)
	}
	if key != "" {
		settings["api_key"] = key
	}
	return settings
}

// runMicLoop opens a full-duplex malgo device and feeds captured audio into
// the session while playing back its synthesized replies. An RMS self-echo
// guard raises the effective silence threshold briefly after the bot has
// spoken, and a shared playback buffer under a mutex lets the same callback
// both read mic samples and fill the speaker buffer every period.
func runMicLoop(ctx context.Context, session *dialog.Session, logger dialog.Logger) (*malgo.AllocatedContext, *malgo.Device) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("malgo: %v", err)
	}

	var playbackMu sync.Mutex
	var playbackBytes []byte

	var botMu sync.Mutex
	var lastPlayedAt time.Time

	go func() {
		for event := range session.DrainOutbound() {
			switch event.Type {
			case dialog.EventAudioChunk:
				data := event.Data.(dialog.AudioChunkData)
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, data.Bytes...)
				playbackMu.Unlock()
				botMu.Lock()
				lastPlayedAt = time.Now()
				botMu.Unlock()
			case dialog.EventTextChunk:
				data := event.Data.(dialog.TextChunkData)
				if data.Text != "" {
					fmt.Printf("\r\033[K[assistant] %s\n", data.Text)
				}
			case dialog.EventAsrUpdate:
				data := event.Data.(dialog.AsrUpdateData)
				if data.IsFinal {
					fmt.Printf("\r\033[K[you] %s\n", data.Text)
				}
			case dialog.EventError:
				data := event.Data.(dialog.ErrorData)
				logger.Error("session error", "kind", data.Kind, "text", data.Text)
			}
		}
	}()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			rms := pcmRMS(pInput)
			threshold := 0.02
			botMu.Lock()
			if time.Since(lastPlayedAt) < 200*time.Millisecond {
				threshold = 0.15
			}
			botMu.Unlock()
			if rms > threshold {
				session.OnAudioFrame(ctx, pInput)
			} else {
				session.OnAudioFrame(ctx, make([]byte, len(pInput)))
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			playbackMu.Unlock()
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatalf("malgo device: %v", err)
	}
	if err := device.Start(); err != nil {
		log.Fatalf("malgo start: %v", err)
	}

	fmt.Println("listening... press Ctrl+C to exit")
	return mctx, device
}

func pcmRMS(pcm []byte) float64 {
	var sum float64
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
