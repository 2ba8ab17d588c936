package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/speakez/internal/config"
	"github.com/MrWong99/speakez/internal/resilience"
	"github.com/MrWong99/speakez/pkg/provider/stt"
	"github.com/MrWong99/speakez/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/speakez/pkg/provider/stt/openai"
	"github.com/MrWong99/speakez/pkg/provider/stt/vosk"
	"github.com/MrWong99/speakez/pkg/provider/stt/whisper"
	"github.com/MrWong99/speakez/pkg/provider/tts"
	"github.com/MrWong99/speakez/pkg/provider/tts/cache"
	"github.com/MrWong99/speakez/pkg/provider/tts/coqui"
	"github.com/MrWong99/speakez/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/speakez/pkg/provider/tts/gtts"
	oatts "github.com/MrWong99/speakez/pkg/provider/tts/openai"
	"github.com/MrWong99/speakez/pkg/provider/tts/piper"
)

// RegisterBuiltins wires every provider that ships with speakez into reg.
// Each factory receives a config.ProviderEntry and maps its fields and
// Options onto the provider's functional options.
func RegisterBuiltins(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rms, ok := config.OptFloat(entry.Options, "rms_threshold"); ok {
			opts = append(opts, whisper.WithRMSThreshold(rms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if rms, ok := config.OptFloat(entry.Options, "rms_threshold"); ok {
			opts = append(opts, whisper.WithNativeRMSThreshold(rms))
		}
		if n, ok := config.OptFloat(entry.Options, "concurrency"); ok {
			opts = append(opts, whisper.WithNativeConcurrency(int(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if secs, ok := config.OptFloat(entry.Options, "timeout_seconds"); ok {
			opts = append(opts, oastt.WithTimeout(time.Duration(secs*float64(time.Second))))
		}
		if n, ok := config.OptFloat(entry.Options, "max_retries"); ok {
			opts = append(opts, oastt.WithMaxRetries(int(n)))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []vosk.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, vosk.WithLanguage(lang))
		}
		return vosk.New(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gtts", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtts.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, gtts.WithLanguage(lang))
		}
		if tld := config.OptString(entry.Options, "tld"); tld != "" {
			opts = append(opts, gtts.WithTLD(tld))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gtts.WithBaseURL(entry.BaseURL))
		}
		if config.OptBool(entry.Options, "slow") {
			opts = append(opts, gtts.WithSlow(true))
		}
		return gtts.New(opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := config.OptString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if voice := config.OptString(entry.Options, "voice"); voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := config.OptString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := config.OptString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if voice := config.OptString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oatts.WithVoice(voice))
		}
		if secs, ok := config.OptFloat(entry.Options, "timeout_seconds"); ok {
			opts = append(opts, oatts.WithTimeout(time.Duration(secs*float64(time.Second))))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if bin := config.OptString(entry.Options, "binary"); bin != "" {
			opts = append(opts, piper.WithBinary(bin))
		}
		if rate, ok := config.OptFloat(entry.Options, "sample_rate"); ok {
			opts = append(opts, piper.WithSampleRate(int(rate)))
		}
		if speaker, ok := config.OptFloat(entry.Options, "speaker"); ok {
			opts = append(opts, piper.WithSpeaker(int(speaker)))
		}
		return piper.New(entry.Model, opts...)
	})

	slog.Debug("registered providers", "stt", reg.Names("stt"), "tts", reg.Names("tts"))
}

// Providers holds the speech backends built from config, ready for the
// practice service.
type Providers struct {
	STT     stt.Provider
	STTName string
	TTS     tts.Provider
	TTSName string

	// STTStatus and TTSStatus report circuit breaker state when fallbacks are
	// configured. Nil otherwise.
	STTStatus func() []resilience.EntryStatus
	TTSStatus func() []resilience.EntryStatus

	closers []io.Closer
}

// Close releases providers holding native resources such as loaded models.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// BuildProviders instantiates the configured STT and TTS providers. An entry
// with fallbacks is wrapped in a circuit-breaking failover group, and the TTS
// provider is fronted by a clip cache unless cacheSize is negative.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	fbCfg := resilience.FallbackConfig{}

	sttEntry := cfg.Providers.STT
	primary, err := ps.createSTT(reg, sttEntry)
	if err != nil {
		ps.Close()
		return nil, err
	}
	ps.STT, ps.STTName = primary, sttEntry.Name
	if len(sttEntry.Fallbacks) > 0 {
		group := resilience.NewSTTFallback(primary, sttEntry.Name, fbCfg)
		for _, fb := range sttEntry.Fallbacks {
			p, err := ps.createSTT(reg, fb)
			if err != nil {
				ps.Close()
				return nil, err
			}
			group.AddFallback(fb.Name, p)
		}
		ps.STT, ps.STTStatus = group, group.Status
	}

	ttsEntry := cfg.Providers.TTS
	ttsPrimary, err := ps.createTTS(reg, ttsEntry)
	if err != nil {
		ps.Close()
		return nil, err
	}
	ps.TTS, ps.TTSName = ttsPrimary, ttsEntry.Name
	if len(ttsEntry.Fallbacks) > 0 {
		group := resilience.NewTTSFallback(ttsPrimary, ttsEntry.Name, fbCfg)
		for _, fb := range ttsEntry.Fallbacks {
			p, err := ps.createTTS(reg, fb)
			if err != nil {
				ps.Close()
				return nil, err
			}
			group.AddFallback(fb.Name, p)
		}
		ps.TTS, ps.TTSStatus = group, group.Status
	}
	if size := cfg.Practice.TTSCacheSize; size >= 0 && ttsEntry.Name != "" {
		ps.TTS = cache.New(ps.TTS, size)
	}
	return ps, nil
}

// errNotConfigured is returned by the stand-in providers used when a
// provider section is left empty.
var errNotConfigured = errors.New("provider not configured")

type unconfiguredSTT struct{}

func (unconfiguredSTT) Transcribe(context.Context, stt.Request) (stt.Transcript, error) {
	return stt.Transcript{}, fmt.Errorf("stt: %w", errNotConfigured)
}

type unconfiguredTTS struct{}

func (unconfiguredTTS) Synthesize(context.Context, string, tts.Options) (*tts.Audio, error) {
	return nil, fmt.Errorf("tts: %w", errNotConfigured)
}

func (ps *Providers) createSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	if entry.Name == "" {
		return unconfiguredSTT{}, nil
	}
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if c, ok := p.(io.Closer); ok {
		ps.closers = append(ps.closers, c)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	return p, nil
}

func (ps *Providers) createTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	if entry.Name == "" {
		return unconfiguredTTS{}, nil
	}
	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	if c, ok := p.(io.Closer); ok {
		ps.closers = append(ps.closers, c)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model)
	return p, nil
}
