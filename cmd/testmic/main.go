// Живой тест диаризации с микрофона
// Запуск: go run ./cmd/testmic -asr-encoder ... -asr-decoder ... \
//   -asr-joiner ... -asr-tokens ... [-encoder enc.onnx] [-record out.wav]
// Остановка: Ctrl+C (остаток буфера финализируется)

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"phrasecast/ai"
	"phrasecast/audio"
	"phrasecast/session"
)

const sampleRate = 16000

func main() {
	device := flag.String("device", "", "Microphone device name (partial match, empty for default)")
	encoderPath := flag.String("encoder", "", "Speaker embedding ONNX model (optional)")
	asrEncoder := flag.String("asr-encoder", "", "Transducer encoder ONNX")
	asrDecoder := flag.String("asr-decoder", "", "Transducer decoder ONNX")
	asrJoiner := flag.String("asr-joiner", "", "Transducer joiner ONNX")
	asrTokens := flag.String("asr-tokens", "", "Transducer tokens.txt")
	chunkSeconds := flag.Float64("chunk", 10.0, "Chunk size in seconds")
	recordPath := flag.String("record", "", "Also save raw audio to WAV file")
	flag.Parse()

	if *asrEncoder == "" {
		flag.Usage()
		os.Exit(1)
	}

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

	processor := session.NewProcessor(session.DefaultProcessorConfig(), recognizer, frameEncoder)
	defer processor.Close()

	capture, err := audio.NewCapture(sampleRate)
	if err != nil {
		log.Fatalf("Failed to init capture: %v", err)
	}
	defer capture.Close()

	if *device != "" {
		if err := capture.SetDeviceByName(*device); err != nil {
			log.Fatalf("Device lookup failed: %v", err)
		}
	}

	var recorder *session.WAVWriter
	if *recordPath != "" {
		recorder, err = session.NewWAVWriter(*recordPath, sampleRate, 1)
		if err != nil {
			log.Fatalf("Failed to create WAV file: %v", err)
		}
		defer recorder.Close()
	}

	if err := capture.Start(); err != nil {
		log.Fatalf("Failed to start capture: %v", err)
	}
	log.Println("Listening... press Ctrl+C to stop")

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	chunkSamples := int(*chunkSeconds * sampleRate)
	var buffer []float32

	printResult := func(result *session.ChunkResult) {
		for _, phrase := range result.Phrases {
			fmt.Printf("[%7.2fs - %7.2fs] %-12s %s\n",
				phrase.Start, phrase.End, phrase.SpeakerLabel, phrase.Text())
		}
	}

	for {
		select {
		case <-stopChan:
			capture.Stop()
			// Финальный чанк из остатка буфера
			if len(buffer) > 0 {
				if result, err := processor.ProcessChunk(buffer, true); err == nil {
					printResult(result)
				} else {
					log.Printf("Final chunk failed: %v", err)
				}
			}
			log.Println("Done")
			return

		case samples := <-capture.Data():
			if recorder != nil {
				recorder.Write(samples)
			}
			buffer = append(buffer, samples...)
			for len(buffer) >= chunkSamples {
				chunk := buffer[:chunkSamples]
				buffer = buffer[chunkSamples:]
				result, err := processor.ProcessChunk(chunk, false)
				if err != nil {
					log.Printf("Chunk failed: %v", err)
					continue
				}
				printResult(result)
			}
		}
	}
}
