package session

import (
	"log"
	"sync"
	"time"

	"phrasecast/ai"
)

// ProcessorConfig конфигурация потокового процессора чанков
type ProcessorConfig struct {
	SampleRate int // Default: 16000

	Detector  ai.PhraseDetectorConfig
	Clusterer ai.ClustererConfig

	// Debug прокидывается в AssignSpeaker для подробного лога
	Debug bool
}

// DefaultProcessorConfig возвращает конфигурацию по умолчанию
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 16000,
		Detector:   ai.DefaultPhraseDetectorConfig(),
		Clusterer:  ai.DefaultClustererConfig(),
	}
}

// Processor оркестрирует пайплайн одного чанка:
// ASR -> акустические фреймы -> carryover split -> фразы -> спикеры
// Чанки обрабатываются строго последовательно: mutex гарантирует что
// следующий чанк не начнётся до завершения текущего
type Processor struct {
	config     ProcessorConfig
	recognizer ai.Recognizer
	encoder    ai.FrameEncoder
	detector   *ai.PhraseDetector
	clusterer  *ai.SpeakerClusterer

	carryover  CarryoverState
	chunkIndex int

	// pending аудио после точки разреза предыдущего чанка;
	// подклеивается в начало следующего и распознаётся заново
	pending []float32

	mu sync.Mutex
}

// NewProcessor создаёт процессор
// encoder может быть nil: фразы пойдут по degraded пути no_embedding
func NewProcessor(config ProcessorConfig, recognizer ai.Recognizer, encoder ai.FrameEncoder) *Processor {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	return &Processor{
		config:     config,
		recognizer: recognizer,
		encoder:    encoder,
		detector:   ai.NewPhraseDetector(config.Detector),
		clusterer:  ai.NewSpeakerClusterer(config.Clusterer),
	}
}

// Clusterer возвращает кластеризатор (для enrollment импорта/экспорта)
// Вызывать только когда ни один чанк не в обработке
func (p *Processor) Clusterer() *ai.SpeakerClusterer {
	return p.clusterer
}

// Carryover возвращает текущее состояние переноса
func (p *Processor) Carryover() CarryoverState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.carryover
}

// ProcessChunk прогоняет один чанк через полный пайплайн
// samples - аудио float32, 16kHz, mono; isFinal - последний чанк сессии
// Аудио после точки разреза предыдущего чанка подклеивается в начало
// автоматически: вызывающий передаёт только новые семплы
// Ошибка ASR даёт *ChunkError и не меняет состояние кластеризатора;
// ошибка акустической модели не фатальна (degraded режим)
func (p *Processor) ProcessChunk(samples []float32, isFinal bool) (*ChunkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := p.chunkIndex
	p.chunkIndex++

	started := time.Now()

	// Перенос с прошлого чанка: аудио после точки разреза входит
	// в текущий чанк и распознаётся заново
	if len(p.pending) > 0 {
		combined := make([]float32, 0, len(p.pending)+len(samples))
		combined = append(combined, p.pending...)
		combined = append(combined, samples...)
		samples = combined
	}

	chunkDuration := float64(len(samples)) / float64(p.config.SampleRate)

	// 1. Распознавание: ошибка здесь чанк-локальна, кластеризатор
	// не трогается (ни одного AssignSpeaker не было)
	words, err := p.recognizer.RecognizeWords(samples)
	if err != nil {
		return nil, &ChunkError{Index: index, Stage: "asr", Err: err}
	}

	// 2. Акустические фреймы: сбой приводит к nil тензору, фразы
	// остаются без embeddings (reason=no_embedding ниже)
	var tensor *ai.FrameTensor
	if p.encoder != nil {
		tensor, err = p.encoder.Frames(samples)
		if err != nil {
			log.Printf("Processor: chunk %d frame extraction failed, degraded mode: %v", index, err)
			tensor = nil
		}
	}

	// 3. Carryover: решаем что финализировать
	kept, splitPoint := SplitCarryover(words, isFinal, chunkDuration)

	// 4. Фразы и их embeddings в локальном времени чанка
	// (выравнивание по фреймам требует локальных таймстемпов)
	phrases := p.detector.DetectPhrases(kept)
	p.detector.ExtractPhraseEmbeddings(tensor, phrases, chunkDuration)

	// 5. Кластеризация по порядку следования фраз
	offset := p.carryover.Offset()
	labeled := make([]LabeledPhrase, len(phrases))
	for i, phrase := range phrases {
		assignment := p.clusterer.AssignSpeaker(phrase.Embedding, p.config.Debug)

		// Ребейзим таймстемпы наружу
		phrase.Start += offset
		phrase.End += offset
		phrase.Words = rebaseWords(phrase.Words, offset)

		labeled[i] = LabeledPhrase{
			Phrase:       phrase,
			SpeakerID:    assignment.SpeakerID,
			SpeakerLabel: p.clusterer.SpeakerLabel(assignment.SpeakerID),
			Reason:       assignment.Reason,
		}
	}

	p.carryover.Commit(splitPoint)

	// Удерживаем аудио после точки разреза для следующего чанка
	if isFinal {
		p.pending = nil
	} else {
		splitSample := int(splitPoint * float64(p.config.SampleRate))
		if splitSample < 0 {
			splitSample = 0
		}
		if splitSample > len(samples) {
			splitSample = len(samples)
		}
		tail := samples[splitSample:]
		p.pending = make([]float32, len(tail))
		copy(p.pending, tail)
	}

	result := &ChunkResult{
		Index:             index,
		Phrases:           labeled,
		SplitPoint:        splitPoint,
		CarryoverDuration: offset,
		Duration:          chunkDuration,
		ProcessedIn:       time.Since(started),
	}

	log.Printf("Processor: chunk %d: %.1fs audio, %d words -> %d phrases (split=%.2fs, took %v)",
		index, chunkDuration, len(words), len(labeled), splitPoint, result.ProcessedIn)

	return result, nil
}

// Reset сбрасывает состояние сессии
// preserveEnrolled оставляет enrolled спикеров в кластеризаторе
func (p *Processor) Reset(preserveEnrolled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.carryover.Reset()
	p.chunkIndex = 0
	p.pending = nil
	p.clusterer.Reset(preserveEnrolled)
}

// Close освобождает внешние движки
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recognizer != nil {
		p.recognizer.Close()
	}
	if p.encoder != nil {
		p.encoder.Close()
	}
}
