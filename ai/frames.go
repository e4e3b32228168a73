package ai

import "math"

// FrameTensor пофреймовый выход акустической модели для одного чанка
// Data хранится row-major: фрейм f, измерение d -> Data[f*Dim+d]
// frameRate = NumFrames / chunkDuration (равномерная дискретизация)
type FrameTensor struct {
	NumFrames int
	Dim       int
	Data      []float32
}

// Frame возвращает срез одного фрейма (без копирования)
func (t *FrameTensor) Frame(i int) []float32 {
	return t.Data[i*t.Dim : (i+1)*t.Dim]
}

// FrameRange отображает временной интервал [start, end) в диапазон фреймов
// [lo, hi) при известной длительности чанка. Гарантирует минимум один фрейм
// даже для вырожденной фразы нулевой длины
func (t *FrameTensor) FrameRange(start, end, chunkDuration float64) (int, int) {
	if t.NumFrames == 0 || chunkDuration <= 0 {
		return 0, 0
	}

	lo := int(math.Floor(start / chunkDuration * float64(t.NumFrames)))
	hi := int(math.Ceil(end / chunkDuration * float64(t.NumFrames)))

	// Клампим в [0, NumFrames)
	if lo < 0 {
		lo = 0
	}
	if lo > t.NumFrames-1 {
		lo = t.NumFrames - 1
	}
	if hi > t.NumFrames {
		hi = t.NumFrames
	}
	// Минимум один фрейм
	if hi <= lo {
		hi = lo + 1
	}

	return lo, hi
}

// MeanPool усредняет фреймы [lo, hi) в один вектор длины Dim
// Аккумуляция в float64 в фиксированном порядке (по возрастанию индекса
// фрейма и измерения), чтобы результат был воспроизводим между запусками
func (t *FrameTensor) MeanPool(lo, hi int) []float32 {
	if hi <= lo || t.Dim == 0 {
		return nil
	}

	acc := make([]float64, t.Dim)
	for f := lo; f < hi; f++ {
		frame := t.Frame(f)
		for d := 0; d < t.Dim; d++ {
			acc[d] += float64(frame[d])
		}
	}

	n := float64(hi - lo)
	pooled := make([]float32, t.Dim)
	for d := 0; d < t.Dim; d++ {
		pooled[d] = float32(acc[d] / n)
	}
	return pooled
}
