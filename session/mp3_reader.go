package session

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Reader читает MP3 файлы используя чистый Go (без FFmpeg)
// Используется офлайновым прогоном пайплайна (cmd/testfile)
type MP3Reader struct {
	decoder    *mp3.Decoder
	file       *os.File
	sampleRate int
	length     int64 // длина в байтах (signed 16-bit stereo PCM)
}

// NewMP3Reader открывает MP3 файл для чтения
func NewMP3Reader(filePath string) (*MP3Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Reader{
		decoder:    decoder,
		file:       file,
		sampleRate: decoder.SampleRate(),
		length:     decoder.Length(),
	}, nil
}

// SampleRate возвращает частоту дискретизации источника
func (r *MP3Reader) SampleRate() int {
	return r.sampleRate
}

// Duration возвращает длительность в секундах
func (r *MP3Reader) Duration() float64 {
	// go-mp3 декодирует в 16-bit stereo: 4 байта на сэмпл
	return float64(r.length/4) / float64(r.sampleRate)
}

// ReadAllMono читает весь файл и возвращает моно float32
// (среднее каналов, исходная частота дискретизации)
func (r *MP3Reader) ReadAllMono() ([]float32, error) {
	pcmData := make([]byte, r.length)
	n, err := io.ReadFull(r.decoder, pcmData)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	numSamples := n / 4 // 2 bytes per sample * 2 channels
	mono := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		left := int16(binary.LittleEndian.Uint16(pcmData[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcmData[i*4+2:]))
		mono[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}

	return mono, nil
}

// ReadAllMonoResampled читает весь файл как моно с приведением
// к целевой частоте (обычно 16000 для моделей)
func (r *MP3Reader) ReadAllMonoResampled(targetRate int) ([]float32, error) {
	mono, err := r.ReadAllMono()
	if err != nil {
		return nil, err
	}
	return ResampleLinear(mono, r.sampleRate, targetRate), nil
}

// Close закрывает файл
func (r *MP3Reader) Close() error {
	return r.file.Close()
}

// ResampleLinear выполняет линейную интерполяцию для ресемплинга
func ResampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(samples)) / ratio)
	resampled := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(samples) {
			resampled[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		} else if srcIdx < len(samples) {
			resampled[i] = samples[srcIdx]
		}
	}

	return resampled
}
