package main

import (
	"log"

	"phrasecast/ai"
	"phrasecast/audio"
	"phrasecast/internal/api"
	"phrasecast/internal/config"
	"phrasecast/internal/service"
	"phrasecast/models"
	"phrasecast/voiceprint"
)

func main() {
	cfg := config.Load()

	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("Failed to init model manager: %v", err)
	}

	store, err := voiceprint.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to init voiceprint store: %v", err)
	}

	capture, err := audio.NewCapture(16000)
	if err != nil {
		log.Fatalf("Failed to init audio capture: %v", err)
	}
	defer capture.Close()

	diarization := service.NewDiarizationService(service.DiarizationConfig{
		SpeakerModelPath: cfg.SpeakerModelPath,
		Detector: ai.PhraseDetectorConfig{
			GapThreshold:      cfg.GapThreshold,
			MinPhraseDuration: cfg.MinPhraseDuration,
		},
		Clusterer: ai.ClustererConfig{
			MaxSpeakers:         cfg.MaxSpeakers,
			SimilarityThreshold: float32(cfg.SimilarityThreshold),
		},
		Debug: cfg.Debug,
	}, modelMgr, store)
	defer diarization.Stop()

	server := api.NewServer(cfg, modelMgr, capture, diarization)
	server.Start()
}
