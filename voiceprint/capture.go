package voiceprint

import (
	"errors"
	"fmt"
	"log"
)

// ErrAudioTooShort аудио короче минимальной длительности enrollment
// Проверяется до вызова акустической модели
var ErrAudioTooShort = errors.New("audio too short for enrollment")

// MinEnrollmentDuration минимальная длительность сегмента (сек)
// для записи профиля
const MinEnrollmentDuration = 0.5

// duplicateWarnThreshold сходство, при котором новый профиль
// почти наверняка дубликат существующего
const duplicateWarnThreshold = 0.85

// Encoder вычисляет усреднённый embedding аудио сегмента
// Реализуется ai.SpeakerEncoder
type Encoder interface {
	Encode(samples []float32) ([]float32, error)
}

// Capture записывает enrollment профили с проверкой входного аудио
type Capture struct {
	encoder    Encoder
	store      *Store
	sampleRate int
}

// NewCapture создаёт capture поверх энкодера и хранилища
func NewCapture(encoder Encoder, store *Store, sampleRate int) *Capture {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Capture{encoder: encoder, store: store, sampleRate: sampleRate}
}

// Enroll вычисляет центроид сегмента и сохраняет профиль
// Слишком короткое аудио отклоняется до инференса (ErrAudioTooShort)
func (c *Capture) Enroll(name string, samples []float32) (*Enrollment, error) {
	minSamples := int(MinEnrollmentDuration * float64(c.sampleRate))
	if len(samples) < minSamples {
		return nil, fmt.Errorf("%w: %.2fs < %.2fs",
			ErrAudioTooShort, float64(len(samples))/float64(c.sampleRate), MinEnrollmentDuration)
	}

	centroid, err := c.encoder.Encode(samples)
	if err != nil {
		return nil, fmt.Errorf("enrollment encoding failed: %w", err)
	}

	if closest, sim := FindClosest(c.store, centroid); closest != nil && sim >= duplicateWarnThreshold {
		log.Printf("[VoicePrint] Warning: new profile %q is very close to %q (sim=%.2f)",
			name, closest.Name, sim)
	}

	return c.store.Add(name, centroid)
}
