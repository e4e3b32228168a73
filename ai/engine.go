// Package ai предоставляет ядро фразовой диаризации: детектор фраз,
// выравнивание фраз по акустическим фреймам и онлайн-кластеризацию спикеров
package ai

// Word слово с таймстемпами, полученное от ASR
// Времена в секундах относительно начала аудио чанка
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration возвращает длительность слова в секундах
func (w Word) Duration() float64 {
	return w.End - w.Start
}

// Phrase группа подряд идущих слов без длинных пауз между ними
// Start == Words[0].Start, End == Words[len-1].End
type Phrase struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`

	// Embedding усреднённый вектор фреймов, перекрывающих фразу
	// nil если акустические фичи недоступны (degraded режим)
	Embedding []float32 `json:"embedding,omitempty"`

	// LowConfidence фраза короче минимальной длительности,
	// embedding вычислен но может быть ненадёжен
	LowConfidence bool `json:"lowConfidence,omitempty"`
}

// Duration возвращает длительность фразы в секундах
func (p Phrase) Duration() float64 {
	return p.End - p.Start
}

// Text собирает текст фразы из слов
func (p Phrase) Text() string {
	text := ""
	for i, w := range p.Words {
		if i > 0 {
			text += " "
		}
		text += w.Text
	}
	return text
}

// Recognizer интерфейс для движков распознавания речи
// Возвращает слова с word-level таймстемпами
type Recognizer interface {
	// RecognizeWords транскрибирует аудио и возвращает упорядоченные слова
	// samples - аудио данные в формате float32, 16kHz, mono
	RecognizeWords(samples []float32) ([]Word, error)

	// Close освобождает ресурсы движка
	Close()

	// Name возвращает имя движка (для логирования)
	Name() string
}

// FrameEncoder интерфейс для акустической модели эмбеддингов
type FrameEncoder interface {
	// Frames возвращает пофреймовый тензор скрытых состояний для чанка
	// Используется для pooling на уровне фраз
	Frames(samples []float32) (*FrameTensor, error)

	// Encode возвращает один усреднённый embedding для сегмента
	// Используется для enrollment, не для пофразовой диаризации
	Encode(samples []float32) ([]float32, error)

	// Close освобождает ресурсы модели
	Close()
}
