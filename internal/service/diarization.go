package service

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"phrasecast/ai"
	"phrasecast/models"
	"phrasecast/session"
	"phrasecast/voiceprint"
)

// DiarizationConfig параметры сервиса диаризации
type DiarizationConfig struct {
	SampleRate   int     // Default: 16000
	ChunkSeconds float64 // Размер чанка в секундах (default: 10.0)

	SpeakerModelPath string

	Detector  ai.PhraseDetectorConfig
	Clusterer ai.ClustererConfig

	Debug bool
}

// DiarizationService управляет потоковой диаризацией: копит аудио
// в чанки, гоняет их через session.Processor и раздаёт результаты
// через callbacks. Профили спикеров синхронизируются с voiceprint.Store
type DiarizationService struct {
	config   DiarizationConfig
	modelMgr *models.Manager
	store    *voiceprint.Store

	processor *session.Processor
	encoder   *ai.SpeakerEncoder
	capture   *voiceprint.Capture

	buffer       []float32
	chunkSamples int

	mu       sync.Mutex
	isActive bool

	// Callbacks для отправки результатов в UI
	OnChunk func(result *session.ChunkResult)
	OnError func(err error)
}

// NewDiarizationService создаёт сервис
func NewDiarizationService(config DiarizationConfig, modelMgr *models.Manager, store *voiceprint.Store) *DiarizationService {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.ChunkSeconds <= 0 {
		config.ChunkSeconds = 10.0
	}

	return &DiarizationService{
		config:       config,
		modelMgr:     modelMgr,
		store:        store,
		chunkSamples: int(config.ChunkSeconds * float64(config.SampleRate)),
	}
}

// Start запускает сессию диаризации с указанной ASR моделью
func (s *DiarizationService) Start(asrModelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isActive {
		return nil // Уже запущен
	}

	paths, err := s.modelMgr.GetTransducerPaths(asrModelID)
	if err != nil {
		return fmt.Errorf("ASR model not available: %w", err)
	}

	recognizer, err := ai.NewSherpaRecognizer(
		ai.DefaultSherpaRecognizerConfig(paths.Encoder, paths.Decoder, paths.Joiner, paths.Tokens))
	if err != nil {
		return fmt.Errorf("failed to init recognizer: %w", err)
	}

	// Speaker encoder опционален: без него сессия идёт в degraded режиме
	var encoder *ai.SpeakerEncoder
	encoderCfg := ai.DefaultSpeakerEncoderConfig(s.config.SpeakerModelPath)
	encoder, err = ai.NewSpeakerEncoder(encoderCfg)
	if err != nil {
		log.Printf("DiarizationService: speaker encoder unavailable, degraded mode: %v", err)
		encoder = nil
	}

	processorCfg := session.ProcessorConfig{
		SampleRate: s.config.SampleRate,
		Detector:   s.config.Detector,
		Clusterer:  s.config.Clusterer,
		Debug:      s.config.Debug,
	}
	var frameEncoder ai.FrameEncoder
	if encoder != nil {
		frameEncoder = encoder
	}
	processor := session.NewProcessor(processorCfg, recognizer, frameEncoder)

	// Загружаем enrollment профили в кластеризатор
	if enrolled := s.store.GetAll(); len(enrolled) > 0 {
		processor.Clusterer().ImportEnrolled(enrolled)
	}

	s.processor = processor
	s.encoder = encoder
	if encoder != nil {
		s.capture = voiceprint.NewCapture(encoder, s.store, s.config.SampleRate)
	}
	s.buffer = nil
	s.isActive = true

	log.Printf("DiarizationService: started (asr=%s, chunk=%.1fs)", asrModelID, s.config.ChunkSeconds)
	return nil
}

// StreamAudio принимает аудио и обрабатывает накопившиеся полные чанки
func (s *DiarizationService) StreamAudio(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isActive {
		return
	}

	s.buffer = append(s.buffer, samples...)

	for len(s.buffer) >= s.chunkSamples {
		chunk := make([]float32, s.chunkSamples)
		copy(chunk, s.buffer[:s.chunkSamples])
		s.buffer = s.buffer[s.chunkSamples:]

		s.processChunk(chunk, false)
	}
}

// Finish обрабатывает остаток буфера как финальный чанк
func (s *DiarizationService) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isActive {
		return
	}

	if len(s.buffer) > 0 {
		chunk := s.buffer
		s.buffer = nil
		s.processChunk(chunk, true)
	}
}

// processChunk вызывать под mutex
func (s *DiarizationService) processChunk(chunk []float32, isFinal bool) {
	result, err := s.processor.ProcessChunk(chunk, isFinal)
	if err != nil {
		log.Printf("DiarizationService: chunk failed: %v", err)
		if s.OnError != nil {
			s.OnError(err)
		}
		return
	}
	if s.OnChunk != nil {
		s.OnChunk(result)
	}
}

// Stop останавливает сессию и освобождает движки
func (s *DiarizationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isActive {
		return
	}

	if s.processor != nil {
		s.processor.Close()
		s.processor = nil
	}
	s.encoder = nil
	s.capture = nil
	s.buffer = nil
	s.isActive = false

	log.Printf("DiarizationService: stopped")
}

// IsActive возвращает true если сессия идёт
func (s *DiarizationService) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isActive
}

// ResetSession сбрасывает состояние сессии не трогая движки
func (s *DiarizationService) ResetSession(preserveEnrolled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processor == nil {
		return
	}
	s.processor.Reset(preserveEnrolled)
	s.buffer = nil

	if preserveEnrolled {
		return
	}
	// Полный сброс: восстанавливаем enrolled из хранилища
	if enrolled := s.store.GetAll(); len(enrolled) > 0 {
		s.processor.Clusterer().ImportEnrolled(enrolled)
	}
}

// EnrollSpeaker записывает профиль спикера по аудио сэмплу
// Аудио сохраняется рядом с профилем как MP3 для переснятия
func (s *DiarizationService) EnrollSpeaker(name string, samples []float32) (*voiceprint.Enrollment, error) {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()

	if capture == nil {
		return nil, fmt.Errorf("speaker encoder is not available")
	}

	// Чистим запись перед кодированием, чтобы шум не попал в центроид
	filtered := session.ApplyAudioFilters(samples, s.config.SampleRate, session.DefaultAudioFilterConfig())

	enrollment, err := capture.Enroll(name, filtered)
	if err != nil {
		return nil, err
	}

	if err := s.saveEnrollmentSample(enrollment.ID, samples); err != nil {
		// Профиль уже сохранён, сэмпл вторичен
		log.Printf("DiarizationService: failed to save enrollment sample: %v", err)
	}

	s.syncEnrolled()
	return enrollment, nil
}

// saveEnrollmentSample пишет аудио профиля в MP3
func (s *DiarizationService) saveEnrollmentSample(enrollmentID string, samples []float32) error {
	samplesDir := s.store.SamplesDir()
	if err := os.MkdirAll(samplesDir, 0755); err != nil {
		return err
	}

	path := filepath.Join(samplesDir, enrollmentID+".mp3")
	writer, err := session.NewMP3Writer(path, s.config.SampleRate, 1)
	if err != nil {
		return err
	}
	if err := writer.Write(samples); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return s.store.SetSamplePath(enrollmentID, path)
}

// ListSpeakers возвращает все enrollment профили
func (s *DiarizationService) ListSpeakers() []voiceprint.Enrollment {
	return s.store.GetAll()
}

// RenameSpeaker переименовывает профиль
func (s *DiarizationService) RenameSpeaker(id, name string) error {
	if err := s.store.UpdateName(id, name); err != nil {
		return err
	}
	s.syncEnrolled()
	return nil
}

// DeleteSpeaker удаляет профиль и его аудио сэмпл
func (s *DiarizationService) DeleteSpeaker(id string) error {
	enrollment, err := s.store.Get(id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(id); err != nil {
		return err
	}
	if enrollment.SamplePath != "" {
		os.Remove(enrollment.SamplePath)
	}

	s.syncEnrolled()
	return nil
}

// ImportSpeakers заменяет все профили переданным набором
func (s *DiarizationService) ImportSpeakers(enrollments []voiceprint.Enrollment) error {
	for i := range enrollments {
		if enrollments[i].ID == "" || len(enrollments[i].Centroid) == 0 {
			return fmt.Errorf("enrollment %d: id and centroid are required", i)
		}
	}

	if err := s.store.Replace(enrollments); err != nil {
		return err
	}

	log.Printf("DiarizationService: imported %d speaker profiles", len(enrollments))
	s.syncEnrolled()
	return nil
}

// syncEnrolled перечитывает enrolled набор в работающий кластеризатор
func (s *DiarizationService) syncEnrolled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processor == nil {
		return
	}
	s.processor.Clusterer().ImportEnrolled(s.store.GetAll())
}
