package ai

// PhraseDetectorConfig конфигурация детектора фраз
type PhraseDetectorConfig struct {
	// GapThreshold пауза между словами (сек), начиная с которой
	// следующее слово открывает новую фразу. Default: 0.300
	GapThreshold float64

	// MinPhraseDuration минимальная длительность фразы (сек) для
	// надёжного embedding. Более короткие фразы всё равно эмитятся,
	// но помечаются LowConfidence. Default: 0.5
	MinPhraseDuration float64
}

// DefaultPhraseDetectorConfig возвращает параметры для разговорной речи
func DefaultPhraseDetectorConfig() PhraseDetectorConfig {
	return PhraseDetectorConfig{
		GapThreshold:      0.300,
		MinPhraseDuration: 0.5,
	}
}

// PhraseDetector группирует слова в фразы по паузам между ними
// и выравнивает фразы по акустическим фреймам чанка
type PhraseDetector struct {
	config PhraseDetectorConfig
}

// NewPhraseDetector создаёт детектор фраз
// Нулевые поля конфигурации заменяются дефолтами
func NewPhraseDetector(config PhraseDetectorConfig) *PhraseDetector {
	if config.GapThreshold <= 0 {
		config.GapThreshold = 0.300
	}
	if config.MinPhraseDuration <= 0 {
		config.MinPhraseDuration = 0.5
	}
	return &PhraseDetector{config: config}
}

// DetectPhrases разбивает упорядоченные по времени слова на фразы
// Фраза - максимальный ряд слов, все внутренние паузы которого
// строго меньше GapThreshold. Слова не теряются и не дублируются
func (d *PhraseDetector) DetectPhrases(words []Word) []Phrase {
	if len(words) == 0 {
		return nil
	}

	var phrases []Phrase
	start := 0

	for i := 1; i < len(words); i++ {
		gap := words[i].Start - words[i-1].End
		if gap >= d.config.GapThreshold {
			phrases = append(phrases, d.buildPhrase(words[start:i]))
			start = i
		}
	}
	phrases = append(phrases, d.buildPhrase(words[start:]))

	return phrases
}

// buildPhrase собирает фразу из непустого ряда слов
func (d *PhraseDetector) buildPhrase(words []Word) Phrase {
	p := Phrase{
		Start: words[0].Start,
		End:   words[len(words)-1].End,
		Words: words,
	}
	p.LowConfidence = p.Duration() < d.config.MinPhraseDuration
	return p
}

// ExtractPhraseEmbeddings вычисляет embedding каждой фразы усреднением
// фреймов тензора, перекрывающих её временной интервал
// Если тензор nil (акустическая модель не отработала), все embeddings
// остаются nil - это degraded режим, не ошибка
func (d *PhraseDetector) ExtractPhraseEmbeddings(tensor *FrameTensor, phrases []Phrase, chunkDuration float64) {
	if tensor == nil || tensor.NumFrames == 0 {
		for i := range phrases {
			phrases[i].Embedding = nil
		}
		return
	}

	for i := range phrases {
		lo, hi := tensor.FrameRange(phrases[i].Start, phrases[i].End, chunkDuration)
		phrases[i].Embedding = tensor.MeanPool(lo, hi)
	}
}
