// Package ai предоставляет SherpaRecognizer для word-level транскрипции
// через sherpa-onnx
package ai

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaRecognizerConfig конфигурация для SherpaRecognizer
type SherpaRecognizerConfig struct {
	// Transducer модель (encoder/decoder/joiner onnx) либо Paraformer
	EncoderPath string
	DecoderPath string
	JoinerPath  string
	TokensPath  string

	NumThreads int    // Количество потоков
	Provider   string // ONNX provider: cpu, cuda, coreml, auto
	SampleRate int    // Default: 16000
}

// detectBestProvider определяет лучший provider для текущей платформы
func detectBestProvider() string {
	// На macOS с Apple Silicon предпочитаем CoreML
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// DefaultSherpaRecognizerConfig возвращает конфигурацию по умолчанию
func DefaultSherpaRecognizerConfig(encoder, decoder, joiner, tokens string) SherpaRecognizerConfig {
	return SherpaRecognizerConfig{
		EncoderPath: encoder,
		DecoderPath: decoder,
		JoinerPath:  joiner,
		TokensPath:  tokens,
		NumThreads:  4,
		Provider:    "auto",
		SampleRate:  16000,
	}
}

// SherpaRecognizer распознаёт речь с токенными таймстемпами через sherpa-onnx
// и собирает из токенов слова для детектора фраз
type SherpaRecognizer struct {
	config      SherpaRecognizerConfig
	recognizer  *sherpa.OfflineRecognizer
	mu          sync.Mutex
	initialized bool
}

// NewSherpaRecognizer создаёт распознаватель на базе sherpa-onnx
func NewSherpaRecognizer(config SherpaRecognizerConfig) (*SherpaRecognizer, error) {
	for _, path := range []string{config.EncoderPath, config.DecoderPath, config.JoinerPath, config.TokensPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", path)
		}
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.NumThreads <= 0 {
		config.NumThreads = 4
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}
	log.Printf("SherpaRecognizer: using provider=%s (requested=%s)", provider, config.Provider)

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: config.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: config.EncoderPath,
				Decoder: config.DecoderPath,
				Joiner:  config.JoinerPath,
			},
			Tokens:     config.TokensPath,
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
		},
		DecodingMethod: "greedy_search",
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		// Если CoreML не сработал, пробуем CPU
		if provider != "cpu" {
			log.Printf("SherpaRecognizer: %s provider failed, falling back to CPU", provider)
			sherpaConfig.ModelConfig.Provider = "cpu"
			recognizer = sherpa.NewOfflineRecognizer(&sherpaConfig)
			if recognizer == nil {
				return nil, fmt.Errorf("failed to create sherpa-onnx recognizer (tried %s and cpu)", provider)
			}
			provider = "cpu"
		} else {
			return nil, fmt.Errorf("failed to create sherpa-onnx recognizer")
		}
	}

	config.Provider = provider
	log.Printf("SherpaRecognizer initialized: provider=%s, encoder=%s", provider, config.EncoderPath)

	return &SherpaRecognizer{
		config:      config,
		recognizer:  recognizer,
		initialized: true,
	}, nil
}

// RecognizeWords транскрибирует чанк и возвращает слова с таймстемпами
// samples - аудио данные в формате float32, 16kHz, mono
func (r *SherpaRecognizer) RecognizeWords(samples []float32) ([]Word, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, fmt.Errorf("recognizer not initialized")
	}

	if len(samples) == 0 {
		return nil, nil
	}

	stream := sherpa.NewOfflineStream(r.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(r.config.SampleRate, samples)
	r.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil || len(result.Tokens) == 0 {
		return nil, nil
	}

	duration := float64(len(samples)) / float64(r.config.SampleRate)
	words := wordsFromTokens(result.Tokens, result.Timestamps, duration)

	log.Printf("SherpaRecognizer: %.1fs audio -> %d words", duration, len(words))
	return words, nil
}

// wordsFromTokens собирает слова из BPE токенов с таймстемпами
// Токен, начинающийся с "▁" или пробела, открывает новое слово
// Конец слова - таймстемп следующего слова, последнее слово
// закрывается концом аудио
func wordsFromTokens(tokens []string, timestamps []float32, duration float64) []Word {
	var words []Word
	var current strings.Builder
	start := 0.0

	flush := func(end float64) {
		text := strings.TrimSpace(current.String())
		if text != "" {
			words = append(words, Word{Text: text, Start: start, End: end})
		}
		current.Reset()
	}

	for i, tok := range tokens {
		ts := duration
		if i < len(timestamps) {
			ts = float64(timestamps[i])
		}

		opensWord := strings.HasPrefix(tok, "▁") || strings.HasPrefix(tok, " ")
		if opensWord && current.Len() > 0 {
			flush(ts)
		}
		if current.Len() == 0 {
			start = ts
		}
		current.WriteString(strings.TrimPrefix(tok, "▁"))
	}
	flush(duration)

	return words
}

// Name возвращает имя движка
func (r *SherpaRecognizer) Name() string {
	return "sherpa-transducer"
}

// Provider возвращает фактический ONNX provider
func (r *SherpaRecognizer) Provider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Provider
}

// Close освобождает ресурсы
func (r *SherpaRecognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(r.recognizer)
		r.recognizer = nil
	}
	r.initialized = false
	log.Printf("SherpaRecognizer closed")
}
