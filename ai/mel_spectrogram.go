package ai

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MelConfig параметры log-mel спектрограммы
type MelConfig struct {
	SampleRate int
	NMels      int
	HopLength  int // Обычно SampleRate / 100 (10ms)
	WinLength  int // Обычно SampleRate / 40 (25ms)
	NFFT       int
}

// MelProcessor вычисляет log-mel спектрограмму для входа энкодера
type MelProcessor struct {
	config  MelConfig
	filters [][]float64 // [nMels][nFFT/2+1]
	window  []float64   // окно Ханна длины WinLength
	fft     *fourier.FFT
}

// NewMelProcessor создаёт процессор с предвычисленным фильтрбанком
func NewMelProcessor(config MelConfig) *MelProcessor {
	p := &MelProcessor{
		config:  config,
		filters: melFilterbank(config.NFFT, config.NMels, config.SampleRate),
		window:  make([]float64, config.WinLength),
		fft:     fourier.NewFFT(config.NFFT),
	}
	for i := range p.window {
		p.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(config.WinLength-1)))
	}
	return p
}

// NumFrames возвращает количество фреймов для аудио заданной длины
// Фреймы выровнены по левому краю: (len - win) / hop + 1
func (p *MelProcessor) NumFrames(numSamples int) int {
	if numSamples < p.config.WinLength {
		return 1
	}
	return (numSamples-p.config.WinLength)/p.config.HopLength + 1
}

// Compute вычисляет log-mel спектрограмму [numFrames][nMels]
func (p *MelProcessor) Compute(samples []float32) ([][]float32, int) {
	numFrames := p.NumFrames(len(samples))
	numBins := p.config.NFFT/2 + 1

	melSpec := make([][]float32, numFrames)
	frameData := make([]float64, p.config.NFFT)
	powerSpec := make([]float64, numBins)

	for frame := 0; frame < numFrames; frame++ {
		frameStart := frame * p.config.HopLength

		// Окно + zero-padding до NFFT
		for i := 0; i < p.config.NFFT; i++ {
			frameData[i] = 0
		}
		for i := 0; i < p.config.WinLength; i++ {
			idx := frameStart + i
			if idx < len(samples) {
				frameData[i] = float64(samples[idx]) * p.window[i]
			}
		}

		coeffs := p.fft.Coefficients(nil, frameData)

		// Power spectrum положительных частот
		for i := 0; i < numBins; i++ {
			re := real(coeffs[i])
			im := imag(coeffs[i])
			powerSpec[i] = re*re + im*im
		}

		// Mel-фильтры + log с клампингом
		melSpec[frame] = make([]float32, p.config.NMels)
		for m := 0; m < p.config.NMels; m++ {
			sum := 0.0
			for k := 0; k < numBins; k++ {
				sum += powerSpec[k] * p.filters[m][k]
			}
			if sum < 1e-9 {
				sum = 1e-9
			}
			melSpec[frame][m] = float32(math.Log(sum))
		}
	}

	return melSpec, numFrames
}

// melFilterbank строит треугольные mel-фильтры (HTK формула, в Hz)
func melFilterbank(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	melToHz := func(mel float64) float64 {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	// Центральные частоты: nMels + 2 точки от 0 до Nyquist
	mMax := hzToMel(fMax)
	fPts := make([]float64, nMels+2)
	for i := range fPts {
		fPts[i] = melToHz(float64(i) * mMax / float64(nMels+1))
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		for k := 0; k < numBins; k++ {
			freq := float64(k) * fMax / float64(numBins-1)
			lower := (freq - fPts[m]) / (fPts[m+1] - fPts[m])
			upper := (fPts[m+2] - freq) / (fPts[m+2] - fPts[m+1])
			val := math.Min(lower, upper)
			if val < 0 {
				val = 0
			}
			filters[m][k] = val
		}
	}

	return filters
}
