package session

import (
	"log"
	"math"
)

// AudioFilterConfig конфигурация предобработки аудио перед кодированием
// речевых профилей. Применяется к enrollment-записям перед вычислением
// эмбеддингов, чтобы шум и щелчки не искажали центроид спикера.
type AudioFilterConfig struct {
	// Noise Gate - подавление участков ниже порога RMS
	NoiseGateEnabled   bool
	NoiseGateThreshold float32

	// Normalization - нормализация к целевому пиковому уровню
	NormalizationEnabled bool
	TargetPeakLevel      float32

	// High-Pass Filter - срез низкочастотного гула и DC offset
	HighPassEnabled bool
	HighPassCutoff  float32 // Частота среза в Hz

	// De-click - интерполяция одиночных щелчков
	DeClickEnabled   bool
	DeClickThreshold float32
}

// DefaultAudioFilterConfig возвращает конфигурацию по умолчанию
func DefaultAudioFilterConfig() AudioFilterConfig {
	return AudioFilterConfig{
		NoiseGateEnabled:     true,
		NoiseGateThreshold:   0.008,
		NormalizationEnabled: true,
		TargetPeakLevel:      0.9,
		HighPassEnabled:      true,
		HighPassCutoff:       80,
		DeClickEnabled:       true,
		DeClickThreshold:     0.4,
	}
}

// ApplyAudioFilters применяет все включённые фильтры к аудио-семплам
// Возвращает обработанные семплы (исходные не изменяются)
func ApplyAudioFilters(samples []float32, sampleRate int, config AudioFilterConfig) []float32 {
	if len(samples) == 0 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	// Порядок фиксирован: high-pass до de-click, нормализация последней
	if config.HighPassEnabled {
		result = applyHighPassFilter(result, sampleRate, config.HighPassCutoff)
	}
	if config.DeClickEnabled {
		result = applyDeClick(result, config.DeClickThreshold)
	}
	if config.NoiseGateEnabled {
		result = applyNoiseGate(result, sampleRate, config.NoiseGateThreshold)
	}
	if config.NormalizationEnabled {
		result = applyNormalization(result, config.TargetPeakLevel)
	}

	return result
}

// applyHighPassFilter применяет IIR фильтр первого порядка
func applyHighPassFilter(samples []float32, sampleRate int, cutoffHz float32) []float32 {
	if len(samples) == 0 || cutoffHz <= 0 {
		return samples
	}

	rc := 1.0 / (2.0 * math.Pi * float64(cutoffHz))
	dt := 1.0 / float64(sampleRate)
	alpha := float32(rc / (rc + dt))

	result := make([]float32, len(samples))
	result[0] = samples[0]

	prevInput := samples[0]
	prevOutput := samples[0]

	for i := 1; i < len(samples); i++ {
		// y[i] = alpha * (y[i-1] + x[i] - x[i-1])
		result[i] = alpha * (prevOutput + samples[i] - prevInput)
		prevInput = samples[i]
		prevOutput = result[i]
	}

	return result
}

// applyDeClick интерполирует одиночные выбросы амплитуды
func applyDeClick(samples []float32, threshold float32) []float32 {
	if len(samples) < 3 {
		return samples
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	clickCount := 0
	for i := 1; i < len(samples)-1; i++ {
		diffPrev := abs32(samples[i] - samples[i-1])
		diffNext := abs32(samples[i] - samples[i+1])

		// Резкий скачок в обе стороны - это щелчок
		if diffPrev > threshold && diffNext > threshold {
			result[i] = (samples[i-1] + samples[i+1]) / 2
			clickCount++
		}
	}

	if clickCount > 0 {
		log.Printf("AudioFilter: De-click removed %d clicks (threshold=%.2f)", clickCount, threshold)
	}

	return result
}

// applyNoiseGate плавно приглушает окна с RMS ниже порога
func applyNoiseGate(samples []float32, sampleRate int, threshold float32) []float32 {
	if len(samples) == 0 {
		return samples
	}

	// Окно 10мс
	windowSize := sampleRate / 100
	if windowSize < 1 {
		windowSize = 1
	}

	result := make([]float32, len(samples))
	copy(result, samples)

	silencedWindows := 0
	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}

		rms := calculateRMS(samples[i:end])
		if rms < threshold {
			attenuation := rms / threshold
			if attenuation < 0.1 {
				attenuation = 0.1
			}
			for j := i; j < end; j++ {
				result[j] *= attenuation
			}
			silencedWindows++
		}
	}

	if silencedWindows > 0 {
		log.Printf("AudioFilter: Noise gate attenuated %d windows (threshold=%.4f)",
			silencedWindows, threshold)
	}

	return result
}

// applyNormalization приводит пик к целевому уровню с клиппингом
func applyNormalization(samples []float32, targetPeak float32) []float32 {
	if len(samples) == 0 || targetPeak <= 0 {
		return samples
	}

	var maxAbs float32
	for _, s := range samples {
		if a := abs32(s); a > maxAbs {
			maxAbs = a
		}
	}

	if maxAbs < 0.001 {
		// Сигнал слишком тихий, усиление поднимет только шум
		return samples
	}

	gain := targetPeak / maxAbs
	if gain > 20 {
		gain = 20
	}

	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = s * gain
		if result[i] > 1 {
			result[i] = 1
		} else if result[i] < -1 {
			result[i] = -1
		}
	}

	return result
}

// calculateRMS вычисляет RMS для набора семплов
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s * s)
	}

	return float32(math.Sqrt(sum / float64(len(samples))))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
