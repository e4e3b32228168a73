package session

import "phrasecast/ai"

// CarryoverState накопленное состояние переноса между чанками
// Аудио после SplitPoint не финализируется: его контекст может быть
// обрезан границей чанка, поэтому оно распознаётся заново вместе
// со следующим чанком
type CarryoverState struct {
	// SplitPoint позиция разреза внутри последнего чанка (сек)
	SplitPoint float64

	// CarryoverDuration сумма секунд, уже потреблённых прошлыми
	// разрезами; прибавляется к таймстемпам финализированных слов
	CarryoverDuration float64
}

// SplitCarryover решает какие слова чанка финализировать
// Возвращает финализируемые слова и точку разреза аудио:
//   - isFinal: все слова, разрез в конце чанка (следующего чанка нет)
//   - 2+ слов: всё кроме последнего, разрез на конце предпоследнего
//     слова (последнее слово будет распознано заново)
//   - 0-1 слово: ничего, разрез в нуле (весь чанк уходит в перенос)
func SplitCarryover(words []ai.Word, isFinal bool, chunkDuration float64) ([]ai.Word, float64) {
	if isFinal {
		return words, chunkDuration
	}

	if len(words) >= 2 {
		kept := words[:len(words)-1]
		return kept, kept[len(kept)-1].End
	}

	return nil, 0
}

// Offset возвращает смещение, которое нужно прибавить к локальным
// таймстемпам текущего чанка перед выдачей наружу
func (s CarryoverState) Offset() float64 {
	return s.CarryoverDuration
}

// Commit фиксирует точку разреза обработанного чанка и сдвигает
// накопленное смещение для следующего
func (s *CarryoverState) Commit(splitPoint float64) {
	s.SplitPoint = splitPoint
	s.CarryoverDuration += splitPoint
}

// Reset сбрасывает состояние переноса (начало новой сессии)
func (s *CarryoverState) Reset() {
	s.SplitPoint = 0
	s.CarryoverDuration = 0
}

// rebaseWords прибавляет offset к таймстемпам слов (копия, вход не меняется)
func rebaseWords(words []ai.Word, offset float64) []ai.Word {
	rebased := make([]ai.Word, len(words))
	for i, w := range words {
		w.Start += offset
		w.End += offset
		rebased[i] = w
	}
	return rebased
}
