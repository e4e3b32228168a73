// Оффлайн прогон диаризации по MP3 файлу
// Запуск: go run ./cmd/testfile -in dialog.mp3 -encoder enc.onnx \
//   -asr-encoder encoder.onnx -asr-decoder decoder.onnx \
//   -asr-joiner joiner.onnx -asr-tokens tokens.txt
// Печатает фразы с метками спикеров по мере обработки чанков

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"phrasecast/ai"
	"phrasecast/session"
)

const sampleRate = 16000

func main() {
	inPath := flag.String("in", "", "Input MP3 file")
	encoderPath := flag.String("encoder", "", "Speaker embedding ONNX model (optional)")
	asrEncoder := flag.String("asr-encoder", "", "Transducer encoder ONNX")
	asrDecoder := flag.String("asr-decoder", "", "Transducer decoder ONNX")
	asrJoiner := flag.String("asr-joiner", "", "Transducer joiner ONNX")
	asrTokens := flag.String("asr-tokens", "", "Transducer tokens.txt")
	chunkSeconds := flag.Float64("chunk", 10.0, "Chunk size in seconds")
	debug := flag.Bool("debug", false, "Verbose speaker assignment logging")
	flag.Parse()

	if *inPath == "" || *asrEncoder == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Читаем весь файл в моно 16kHz
	reader, err := session.NewMP3Reader(*inPath)
	if err != nil {
		log.Fatalf("Failed to open MP3: %v", err)
	}
	samples, err := reader.ReadAllMonoResampled(sampleRate)
	reader.Close()
	if err != nil {
		log.Fatalf("Failed to decode MP3: %v", err)
	}
	log.Printf("Loaded %.1fs of audio", float64(len(samples))/sampleRate)

	recognizer, err := ai.NewSherpaRecognizer(
		ai.DefaultSherpaRecognizerConfig(*asrEncoder, *asrDecoder, *asrJoiner, *asrTokens))
	if err != nil {
		log.Fatalf("Failed to init recognizer: %v", err)
	}

	var frameEncoder ai.FrameEncoder
	if *encoderPath != "" {
		encoder, err := ai.NewSpeakerEncoder(ai.DefaultSpeakerEncoderConfig(*encoderPath))
		if err != nil {
			log.Printf("Speaker encoder unavailable, degraded mode: %v", err)
		} else {
			frameEncoder = encoder
		}
	}

	cfg := session.DefaultProcessorConfig()
	cfg.Debug = *debug
	processor := session.NewProcessor(cfg, recognizer, frameEncoder)
	defer processor.Close()

	// Гоним файл чанками как live поток
	chunkSamples := int(*chunkSeconds * sampleRate)
	for offset := 0; offset < len(samples); offset += chunkSamples {
		end := offset + chunkSamples
		isFinal := end >= len(samples)
		if isFinal {
			end = len(samples)
		}

		result, err := processor.ProcessChunk(samples[offset:end], isFinal)
		if err != nil {
			log.Printf("Chunk failed: %v", err)
			continue
		}

		for _, phrase := range result.Phrases {
			marker := ""
			if phrase.LowConfidence {
				marker = " (?)"
			}
			fmt.Printf("[%7.2fs - %7.2fs] %-12s%s %s\n",
				phrase.Start, phrase.End, phrase.SpeakerLabel, marker, phrase.Text())
		}
	}
}
