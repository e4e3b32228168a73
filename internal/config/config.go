package config

import (
	"flag"
	"path/filepath"
)

type Config struct {
	// ASRModel ID transducer модели из реестра (models.Registry)
	ASRModel string

	// SpeakerModelPath путь к .onnx модели speaker embedding
	// Пустая строка означает дефолтную модель из ModelsDir
	SpeakerModelPath string

	DataDir   string
	ModelsDir string
	Port      string
	GRPCAddr  string

	// Параметры диаризации
	GapThreshold        float64
	MinPhraseDuration   float64
	MaxSpeakers         int
	SimilarityThreshold float64

	Debug bool
}

func Load() *Config {
	asrModel := flag.String("asr", "zipformer-en-2023-06-26", "Transducer ASR model ID")
	speakerModel := flag.String("speaker-model", "", "Path to speaker embedding ONNX model (default: modelsDir/wespeaker-voxceleb-resnet34.onnx)")
	dataDir := flag.String("data", "data/app", "Directory for application data")
	modelsDir := flag.String("models", "", "Directory for downloaded models (default: dataDir/../models)")
	port := flag.String("port", "8080", "WebSocket server port")
	grpcAddr := flag.String("grpc", "", "gRPC listen address (empty disables gRPC, \"pipe\" uses named pipe/unix socket)")
	gapThreshold := flag.Float64("gap", 0.300, "Inter-word silence that opens a new phrase (seconds)")
	minPhrase := flag.Float64("min-phrase", 0.5, "Minimum phrase duration before low-confidence flag (seconds)")
	maxSpeakers := flag.Int("max-speakers", 2, "Soft cap on auto-discovered speakers")
	similarity := flag.Float64("similarity", 0.75, "Cosine similarity threshold for confident speaker match")
	debug := flag.Bool("debug", false, "Verbose speaker assignment logging")
	flag.Parse()

	finalModelsDir := *modelsDir
	if finalModelsDir == "" {
		finalModelsDir = filepath.Join(filepath.Dir(*dataDir), "models")
	}

	finalSpeakerModel := *speakerModel
	if finalSpeakerModel == "" {
		finalSpeakerModel = filepath.Join(finalModelsDir, "wespeaker-voxceleb-resnet34.onnx")
	}

	return &Config{
		ASRModel:            *asrModel,
		SpeakerModelPath:    finalSpeakerModel,
		DataDir:             *dataDir,
		ModelsDir:           finalModelsDir,
		Port:                *port,
		GRPCAddr:            *grpcAddr,
		GapThreshold:        *gapThreshold,
		MinPhraseDuration:   *minPhrase,
		MaxSpeakers:         *maxSpeakers,
		SimilarityThreshold: *similarity,
		Debug:               *debug,
	}
}
