// Package session управляет потоковой обработкой аудио чанков:
// политикой carryover на границах чанков и оркестрацией пайплайна
// распознавание -> фразы -> кластеризация
package session

import (
	"fmt"
	"time"

	"phrasecast/ai"
)

// LabeledPhrase фраза с назначенным спикером
type LabeledPhrase struct {
	ai.Phrase
	SpeakerID    int    `json:"speakerId"`
	SpeakerLabel string `json:"speakerLabel"`
	Reason       string `json:"reason,omitempty"`
}

// ChunkResult результат обработки одного чанка
type ChunkResult struct {
	Index   int             `json:"index"`
	Phrases []LabeledPhrase `json:"phrases"`

	// SplitPoint момент (сек, внутри аудио чанка), после которого
	// аудио удержано и будет распознано заново со следующим чанком
	SplitPoint float64 `json:"splitPoint"`

	// CarryoverDuration суммарное смещение (сек), применённое к
	// таймстемпам этого результата
	CarryoverDuration float64 `json:"carryoverDuration"`

	Duration    float64       `json:"duration"` // Длительность аудио чанка (сек)
	ProcessedIn time.Duration `json:"-"`
}

// ChunkError ошибка обработки чанка: несёт индекс чанка,
// состояние кластеризатора при этом не затронуто
type ChunkError struct {
	Index int
	Stage string // "asr" или "frames"
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %s failed: %v", e.Index, e.Stage, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
