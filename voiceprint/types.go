// Package voiceprint предоставляет enrollment-профили спикеров:
// эталонные центроиды с именами, сохраняемые между сессиями
package voiceprint

import "time"

// Enrollment сохранённый профиль спикера с эталонным центроидом
// Centroid неизменяем: кластеризация никогда не обновляет его
type Enrollment struct {
	ID         string    `json:"id"`         // UUID
	Name       string    `json:"name"`       // Имя спикера
	Centroid   []float32 `json:"centroid"`   // Эталонный вектор (D-мерный)
	ColorIndex int       `json:"colorIndex"` // Индекс цвета для UI
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Опционально: путь к аудио-сэмплу для воспроизведения
	SamplePath string `json:"samplePath,omitempty"`
}

// enrollmentFile формат JSON файла хранилища
type enrollmentFile struct {
	Version     int          `json:"version"` // Версия формата (для миграций)
	Enrollments []Enrollment `json:"enrollments"`
}

// CurrentVersion текущая версия формата хранения
const CurrentVersion = 1
