package ai

import (
	"fmt"
	"log"

	"phrasecast/voiceprint"
)

// UnknownSpeakerID сентинел для фразы, которую не удалось отнести
// ни к одному спикеру
const UnknownSpeakerID = -1

// Причины назначения спикера (Assignment.Reason)
const (
	ReasonNoEmbedding    = "no_embedding"
	ReasonNewSpeaker     = "new_speaker"
	ReasonConfidentMatch = "confident_match"
	ReasonBelowThreshold = "below_threshold"
	ReasonUnknown        = "unknown"
)

// ClustererConfig конфигурация онлайн-кластеризации спикеров
type ClustererConfig struct {
	// MaxSpeakers мягкий лимит на количество автоматически
	// создаваемых (не enrolled) спикеров. Default: 2
	MaxSpeakers int

	// SimilarityThreshold косинусное сходство для уверенного
	// совпадения с существующим спикером. Default: 0.75
	SimilarityThreshold float32

	// FallbackThreshold более слабый порог: при заполненном лимите
	// спикеров фраза отдаётся лучшему кандидату если сходство выше,
	// иначе возвращается UnknownSpeakerID. Default: 0.50
	FallbackThreshold float32
}

// DefaultClustererConfig возвращает параметры для диалога двух человек
func DefaultClustererConfig() ClustererConfig {
	return ClustererConfig{
		MaxSpeakers:         2,
		SimilarityThreshold: 0.75,
		FallbackThreshold:   0.50,
	}
}

// speaker внутреннее состояние одного спикера
// У enrolled спикеров centroid неизменяем, sampleCount заморожен
type speaker struct {
	id          int
	centroid    []float32
	enrolled    bool
	name        string
	colorIndex  int
	sampleCount int
	enrollID    string // UUID исходного enrollment (для экспорта)
}

// Assignment результат назначения спикера одной фразе
type Assignment struct {
	SpeakerID  int     `json:"speakerId"`
	Reason     string  `json:"reason"`
	Similarity float32 `json:"similarity,omitempty"`
	IsEnrolled bool    `json:"isEnrolled,omitempty"`
}

// SpeakerClusterer назначает embeddings фраз персистентным спикерам,
// поддерживая бегущие центроиды. Состояние живёт от создания до Reset.
// Не потокобезопасен: вызывающий обязан обрабатывать чанки строго
// последовательно (см. session.Processor)
type SpeakerClusterer struct {
	config   ClustererConfig
	speakers []*speaker
	nextID   int
}

// NewSpeakerClusterer создаёт кластеризатор
// Нулевые поля конфигурации заменяются дефолтами
func NewSpeakerClusterer(config ClustererConfig) *SpeakerClusterer {
	if config.MaxSpeakers <= 0 {
		config.MaxSpeakers = 2
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.75
	}
	if config.FallbackThreshold <= 0 {
		config.FallbackThreshold = 0.50
	}
	return &SpeakerClusterer{config: config}
}

// AssignSpeaker назначает embedding одному из спикеров
// nil embedding не ошибка: фраза получает первого спикера (degraded режим)
// Обновление центроида атомарно: либо применяется целиком, либо никак
func (c *SpeakerClusterer) AssignSpeaker(embedding []float32, debug bool) Assignment {
	// 1. Нет акустических фич - отдаём первому спикеру чтобы вывод
	// оставался размеченным
	if embedding == nil {
		if len(c.speakers) == 0 {
			c.createSpeaker(nil)
		}
		return Assignment{
			SpeakerID:  c.speakers[0].id,
			Reason:     ReasonNoEmbedding,
			IsEnrolled: c.speakers[0].enrolled,
		}
	}

	// 2. Первый спикер сессии
	if len(c.speakers) == 0 {
		sp := c.createSpeaker(embedding)
		return Assignment{SpeakerID: sp.id, Reason: ReasonNewSpeaker}
	}

	// Placeholder из no_embedding режима ещё без центроида: он принимает
	// первый реальный embedding напрямую, не участвуя в сравнении
	// (CosineSimilarity с пустым центроидом всегда 0)
	for _, sp := range c.speakers {
		if !sp.enrolled && len(sp.centroid) == 0 {
			c.updateCentroid(sp, embedding)
			return Assignment{SpeakerID: sp.id, Reason: ReasonNewSpeaker}
		}
	}

	// 3. Лучший кандидат среди всех спикеров (enrolled и обычных)
	// При равном сходстве побеждает меньший id (раньше созданный),
	// независимо от позиции в списке
	best := 0
	bestSim := voiceprint.CosineSimilarity(embedding, c.speakers[0].centroid)
	for i := 1; i < len(c.speakers); i++ {
		sim := voiceprint.CosineSimilarity(embedding, c.speakers[i].centroid)
		if sim > bestSim || (sim == bestSim && c.speakers[i].id < c.speakers[best].id) {
			bestSim = sim
			best = i
		}
	}

	// 4. Уверенное совпадение
	if bestSim >= c.config.SimilarityThreshold {
		sp := c.speakers[best]
		if !sp.enrolled {
			c.updateCentroid(sp, embedding)
		}
		if debug {
			log.Printf("Clusterer: confident match -> speaker %d (sim=%.3f, enrolled=%v)",
				sp.id, bestSim, sp.enrolled)
		}
		return Assignment{
			SpeakerID:  sp.id,
			Reason:     ReasonConfidentMatch,
			Similarity: bestSim,
			IsEnrolled: sp.enrolled,
		}
	}

	// 5. Лимит не исчерпан - новый спикер
	if c.discoveredCount() < c.config.MaxSpeakers {
		sp := c.createSpeaker(embedding)
		if debug {
			log.Printf("Clusterer: new speaker %d (best sim=%.3f)", sp.id, bestSim)
		}
		return Assignment{SpeakerID: sp.id, Reason: ReasonNewSpeaker, Similarity: bestSim}
	}

	// 6. Лимит исчерпан: отдаём лучшему если сходство выше fallback
	// порога, иначе фраза остаётся неизвестной. Центроид не трогаем
	if bestSim >= c.config.FallbackThreshold {
		sp := c.speakers[best]
		if debug {
			log.Printf("Clusterer: below threshold, fallback -> speaker %d (sim=%.3f)", sp.id, bestSim)
		}
		return Assignment{
			SpeakerID:  sp.id,
			Reason:     ReasonBelowThreshold,
			Similarity: bestSim,
			IsEnrolled: sp.enrolled,
		}
	}

	if debug {
		log.Printf("Clusterer: unknown speaker (best sim=%.3f)", bestSim)
	}
	return Assignment{SpeakerID: UnknownSpeakerID, Reason: ReasonUnknown, Similarity: bestSim}
}

// createSpeaker создаёт нового не-enrolled спикера
// embedding может быть nil (placeholder для no_embedding режима)
func (c *SpeakerClusterer) createSpeaker(embedding []float32) *speaker {
	sp := &speaker{
		id:         c.nextID,
		colorIndex: len(c.speakers),
	}
	c.nextID++

	if embedding != nil {
		sp.centroid = make([]float32, len(embedding))
		copy(sp.centroid, embedding)
		sp.sampleCount = 1
	}

	c.speakers = append(c.speakers, sp)
	return sp
}

// updateCentroid обновляет бегущее среднее центроида
// Новый вектор вычисляется целиком и подменяется атомарно
func (c *SpeakerClusterer) updateCentroid(sp *speaker, embedding []float32) {
	// Placeholder без центроида принимает первый embedding как есть
	if sp.sampleCount == 0 || len(sp.centroid) != len(embedding) {
		centroid := make([]float32, len(embedding))
		copy(centroid, embedding)
		sp.centroid = centroid
		sp.sampleCount = 1
		return
	}

	n := float32(sp.sampleCount)
	updated := make([]float32, len(sp.centroid))
	for i := range sp.centroid {
		updated[i] = (sp.centroid[i]*n + embedding[i]) / (n + 1)
	}

	sp.centroid = updated
	sp.sampleCount++
}

// discoveredCount количество не-enrolled спикеров
func (c *SpeakerClusterer) discoveredCount() int {
	count := 0
	for _, sp := range c.speakers {
		if !sp.enrolled {
			count++
		}
	}
	return count
}

// ImportEnrolled заменяет всех enrolled спикеров новым набором профилей
// Существующие не-enrolled спикеры не трогаются. Профили без центроида
// молча пропускаются (наблюдаемо через EnrolledCount)
func (c *SpeakerClusterer) ImportEnrolled(enrollments []voiceprint.Enrollment) {
	// Убираем прежних enrolled, сохраняя порядок остальных
	kept := c.speakers[:0]
	for _, sp := range c.speakers {
		if !sp.enrolled {
			kept = append(kept, sp)
		}
	}

	// Новые enrolled профили идут перед остальными
	imported := make([]*speaker, 0, len(enrollments))
	for _, e := range enrollments {
		if len(e.Centroid) == 0 {
			continue
		}
		sp := &speaker{
			id:         c.nextID,
			enrolled:   true,
			name:       e.Name,
			colorIndex: e.ColorIndex,
			enrollID:   e.ID,
			centroid:   make([]float32, len(e.Centroid)),
		}
		copy(sp.centroid, e.Centroid)
		c.nextID++
		imported = append(imported, sp)
	}

	c.speakers = append(imported, kept...)
	log.Printf("Clusterer: imported %d enrolled speakers (%d skipped)",
		len(imported), len(enrollments)-len(imported))
}

// ExportEnrolled возвращает профили всех enrolled спикеров
// с исходными ID для сохранения между перезапусками
func (c *SpeakerClusterer) ExportEnrolled() []voiceprint.Enrollment {
	var result []voiceprint.Enrollment
	for _, sp := range c.speakers {
		if !sp.enrolled {
			continue
		}
		centroid := make([]float32, len(sp.centroid))
		copy(centroid, sp.centroid)
		result = append(result, voiceprint.Enrollment{
			ID:         sp.enrollID,
			Name:       sp.name,
			Centroid:   centroid,
			ColorIndex: sp.colorIndex,
		})
	}
	return result
}

// Reset сбрасывает состояние кластеризатора
// preserveEnrolled = true оставляет только enrolled спикеров
func (c *SpeakerClusterer) Reset(preserveEnrolled bool) {
	if !preserveEnrolled {
		c.speakers = nil
		c.nextID = 0
		return
	}

	kept := make([]*speaker, 0, len(c.speakers))
	for _, sp := range c.speakers {
		if sp.enrolled {
			kept = append(kept, sp)
		}
	}
	c.speakers = kept
}

// EnrolledCount количество enrolled спикеров
func (c *SpeakerClusterer) EnrolledCount() int {
	count := 0
	for _, sp := range c.speakers {
		if sp.enrolled {
			count++
		}
	}
	return count
}

// SpeakerCount общее количество спикеров
func (c *SpeakerClusterer) SpeakerCount() int {
	return len(c.speakers)
}

// SpeakerLabel возвращает отображаемое имя спикера:
// имя enrollment профиля ("Enrolled N" если имя пустое), либо
// "Speaker N" (нумерация с 1 среди не-enrolled в порядке создания),
// либо "Unknown" для сентинела
func (c *SpeakerClusterer) SpeakerLabel(id int) string {
	if id == UnknownSpeakerID {
		return "Unknown"
	}

	ordinal := 0
	enrolledOrdinal := 0
	for _, sp := range c.speakers {
		if sp.enrolled {
			enrolledOrdinal++
		} else {
			ordinal++
		}
		if sp.id != id {
			continue
		}
		if sp.enrolled {
			if sp.name != "" {
				return sp.name
			}
			return fmt.Sprintf("Enrolled %d", enrolledOrdinal)
		}
		return fmt.Sprintf("Speaker %d", ordinal)
	}

	return "Unknown"
}
