package voiceprint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store хранилище enrollment-профилей в JSON файле
type Store struct {
	path string
	data enrollmentFile
	mu   sync.RWMutex
}

// NewStore создаёт хранилище профилей
// dataDir - директория с данными приложения; speakers.json лежит в ней
func NewStore(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "speakers.json")

	store := &Store{
		path: path,
		data: enrollmentFile{Version: CurrentVersion},
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load speakers: %w", err)
	}

	log.Printf("[VoicePrint] Store initialized: %s (%d enrollments)", path, len(store.data.Enrollments))
	return store, nil
}

// load загружает данные из файла
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("failed to parse speakers.json: %w", err)
	}

	if s.data.Version < CurrentVersion {
		s.data.Version = CurrentVersion
		return s.saveUnsafe()
	}

	return nil
}

// saveUnsafe сохраняет без блокировки (вызывать только при удержании lock)
// Запись атомарная: временный файл + rename
func (s *Store) saveUnsafe() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal speakers: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// GetAll возвращает копию всех enrollments
func (s *Store) GetAll() []Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Enrollment, len(s.data.Enrollments))
	copy(result, s.data.Enrollments)
	return result
}

// Get возвращает enrollment по ID
func (s *Store) Get(id string) (*Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.data.Enrollments {
		if s.data.Enrollments[i].ID == id {
			e := s.data.Enrollments[i]
			return &e, nil
		}
	}

	return nil, fmt.Errorf("enrollment not found: %s", id)
}

// Add добавляет новый профиль и возвращает его
func (s *Store) Add(name string, centroid []float32) (*Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e := Enrollment{
		ID:         uuid.New().String(),
		Name:       name,
		Centroid:   make([]float32, len(centroid)),
		ColorIndex: len(s.data.Enrollments),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	copy(e.Centroid, centroid)

	s.data.Enrollments = append(s.data.Enrollments, e)

	if err := s.saveUnsafe(); err != nil {
		// Откатываем изменение
		s.data.Enrollments = s.data.Enrollments[:len(s.data.Enrollments)-1]
		return nil, err
	}

	log.Printf("[VoicePrint] Added: %s (%s)", e.Name, e.ID[:8])
	return &e, nil
}

// UpdateName обновляет имя профиля
func (s *Store) UpdateName(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Enrollments {
		if s.data.Enrollments[i].ID == id {
			s.data.Enrollments[i].Name = name
			s.data.Enrollments[i].UpdatedAt = time.Now()
			return s.saveUnsafe()
		}
	}

	return fmt.Errorf("enrollment not found: %s", id)
}

// SetSamplePath устанавливает путь к аудио-сэмплу профиля
func (s *Store) SetSamplePath(id, samplePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Enrollments {
		if s.data.Enrollments[i].ID == id {
			s.data.Enrollments[i].SamplePath = samplePath
			s.data.Enrollments[i].UpdatedAt = time.Now()
			return s.saveUnsafe()
		}
	}

	return fmt.Errorf("enrollment not found: %s", id)
}

// Delete удаляет профиль
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Enrollments {
		if s.data.Enrollments[i].ID == id {
			name := s.data.Enrollments[i].Name
			s.data.Enrollments = append(
				s.data.Enrollments[:i],
				s.data.Enrollments[i+1:]...,
			)
			if err := s.saveUnsafe(); err != nil {
				return err
			}
			log.Printf("[VoicePrint] Deleted: %s (%s)", name, id[:8])
			return nil
		}
	}

	return fmt.Errorf("enrollment not found: %s", id)
}

// Replace заменяет все профили новым набором (для импорта)
func (s *Store) Replace(enrollments []Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Enrollments = make([]Enrollment, len(enrollments))
	copy(s.data.Enrollments, enrollments)
	return s.saveUnsafe()
}

// Count возвращает количество сохранённых профилей
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Enrollments)
}

// SamplesDir возвращает директорию для аудио-сэмплов профилей
func (s *Store) SamplesDir() string {
	return filepath.Join(filepath.Dir(s.path), "speakers")
}
