package session

import (
	"fmt"
	"os"
	"sync"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// MP3Writer писатель MP3 через shine-mp3 (чистый Go, без FFmpeg)
// Используется для сохранения аудио-сэмплов enrollment профилей
//
// Кодек надёжен только на MPEG-1 частотах (32/44.1/48 kHz): более
// низкие входные частоты приводятся к 32 kHz перед кодированием.
// Encoder.Write корректно кодирует ровно один фрейм данных за вызов
// (его внутренний цикл шагает по входу как по стерео), поэтому запись
// идёт блоками в один MP3 фрейм
type MP3Writer struct {
	file     *os.File
	encoder  *mp3.Encoder
	filePath string

	srcRate    int // частота входных семплов
	encodeRate int // частота файла (MPEG-1)
	channels   int

	frameSize int // int16 семплов на один MP3 фрейм (1152 * каналы)
	buffer    []int16

	samplesWritten int64
	mu             sync.Mutex
	closed         bool
}

// mpeg1Rate возвращает частоту кодирования для входной частоты
func mpeg1Rate(sampleRate int) int {
	switch sampleRate {
	case 32000, 44100, 48000:
		return sampleRate
	default:
		return 32000
	}
}

// NewMP3Writer создаёт новый MP3 writer
// sampleRate описывает входные семплы; файл пишется на ближайшей
// поддерживаемой частоте (см. EncodeRate)
func NewMP3Writer(filePath string, sampleRate, channels int) (*MP3Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	encodeRate := mpeg1Rate(sampleRate)
	return &MP3Writer{
		file:       file,
		encoder:    mp3.NewEncoder(encodeRate, channels),
		filePath:   filePath,
		srcRate:    sampleRate,
		encodeRate: encodeRate,
		channels:   channels,
		frameSize:  1152 * channels,
		buffer:     make([]int16, 0, 8192),
	}, nil
}

// EncodeRate возвращает частоту дискретизации записываемого файла
func (w *MP3Writer) EncodeRate() int {
	return w.encodeRate
}

// Write записывает float32 семплы входной частоты
func (w *MP3Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	w.samplesWritten += int64(len(samples))

	if w.srcRate != w.encodeRate {
		samples = ResampleLinear(samples, w.srcRate, w.encodeRate)
	}

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}

	return w.flushFrames()
}

// flushFrames кодирует накопленные полные фреймы, строго по одному
// фрейму на вызов Encoder.Write
func (w *MP3Writer) flushFrames() error {
	for len(w.buffer) >= w.frameSize {
		if err := w.encoder.Write(w.file, w.buffer[:w.frameSize]); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
		w.buffer = w.buffer[w.frameSize:]
	}
	return nil
}

// SamplesWritten возвращает количество принятых входных семплов
func (w *MP3Writer) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// FilePath возвращает путь к файлу
func (w *MP3Writer) FilePath() string {
	return w.filePath
}

// Close дописывает остаток буфера (с паддингом до фрейма) и закрывает файл
func (w *MP3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buffer) > 0 {
		for len(w.buffer)%w.frameSize != 0 {
			w.buffer = append(w.buffer, 0)
		}
		if err := w.flushFrames(); err != nil {
			w.file.Close()
			return err
		}
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
