package models

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ProgressCallback функция обратного вызова для прогресса
type ProgressCallback func(modelID string, progress float64, status ModelStatus, err error)

// TransducerPaths пути к файлам transducer модели внутри распакованного архива
type TransducerPaths struct {
	Encoder string
	Decoder string
	Joiner  string
	Tokens  string
}

// Manager менеджер моделей
type Manager struct {
	modelsDir   string
	activeASR   string
	downloads   map[string]context.CancelFunc // Активные загрузки
	mu          sync.RWMutex
	onProgress  ProgressCallback
}

// NewManager создаёт новый менеджер моделей
func NewManager(modelsDir string) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Manager{
		modelsDir: modelsDir,
		downloads: make(map[string]context.CancelFunc),
	}, nil
}

// SetProgressCallback устанавливает callback для прогресса
func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProgress = cb
}

// GetModelsDir возвращает путь к директории моделей
func (m *Manager) GetModelsDir() string {
	return m.modelsDir
}

// GetModelPath возвращает путь к модели: директория для архивных,
// .onnx файл для остальных
func (m *Manager) GetModelPath(modelID string) string {
	info := GetModelByID(modelID)
	if info == nil {
		return ""
	}
	if info.IsArchive {
		return filepath.Join(m.modelsDir, modelID)
	}
	return filepath.Join(m.modelsDir, modelID+".onnx")
}

// GetTransducerPaths находит файлы transducer модели в распакованном
// архиве. Имена файлов в релизах sherpa-onnx включают эпохи
// (encoder-epoch-99-avg-1.onnx), поэтому ищем по префиксу.
// int8 варианты пропускаются если есть обычные
func (m *Manager) GetTransducerPaths(modelID string) (*TransducerPaths, error) {
	info := GetModelByID(modelID)
	if info == nil || !info.IsArchive {
		return nil, fmt.Errorf("model %s is not a transducer archive", modelID)
	}

	dir := filepath.Join(m.modelsDir, modelID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("model %s is not downloaded: %w", modelID, err)
	}

	paths := &TransducerPaths{}
	pick := func(current *string, name, prefix string) {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".onnx") {
			return
		}
		// Предпочитаем полноточную версию int8
		if *current == "" || strings.Contains(filepath.Base(*current), "int8") {
			*current = filepath.Join(dir, name)
		}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		pick(&paths.Encoder, name, "encoder")
		pick(&paths.Decoder, name, "decoder")
		pick(&paths.Joiner, name, "joiner")
		if name == "tokens.txt" {
			paths.Tokens = filepath.Join(dir, name)
		}
	}

	if paths.Encoder == "" || paths.Decoder == "" || paths.Joiner == "" || paths.Tokens == "" {
		return nil, fmt.Errorf("incomplete transducer model in %s", dir)
	}
	return paths, nil
}

// IsModelDownloaded проверяет, скачана ли модель
func (m *Manager) IsModelDownloaded(modelID string) bool {
	info := GetModelByID(modelID)
	if info == nil {
		return false
	}

	if info.IsArchive {
		_, err := m.GetTransducerPaths(modelID)
		return err == nil
	}

	stat, err := os.Stat(m.GetModelPath(modelID))
	if err != nil {
		return false
	}
	// Файл не пустой и не огрызок
	return stat.Size() >= 1_000_000
}

// GetActiveASRModel возвращает ID активной ASR модели
func (m *Manager) GetActiveASRModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeASR
}

// SetActiveASRModel устанавливает активную ASR модель
func (m *Manager) SetActiveASRModel(modelID string) error {
	info := GetModelByID(modelID)
	if info == nil || info.Engine != EngineTypeASR {
		return fmt.Errorf("not an ASR model: %s", modelID)
	}
	if !m.IsModelDownloaded(modelID) {
		return fmt.Errorf("model %s is not downloaded", modelID)
	}

	m.mu.Lock()
	m.activeASR = modelID
	m.mu.Unlock()

	log.Printf("Active ASR model set to: %s", modelID)
	return nil
}

// GetAllModelsState возвращает состояние всех моделей
func (m *Manager) GetAllModelsState() []ModelState {
	m.mu.RLock()
	activeASR := m.activeASR
	downloads := make(map[string]bool)
	for id := range m.downloads {
		downloads[id] = true
	}
	m.mu.RUnlock()

	states := make([]ModelState, len(Registry))
	for i, info := range Registry {
		state := ModelState{
			ModelInfo: info,
			Path:      m.GetModelPath(info.ID),
		}

		if downloads[info.ID] {
			state.Status = ModelStatusDownloading
		} else if m.IsModelDownloaded(info.ID) {
			if info.ID == activeASR {
				state.Status = ModelStatusActive
			} else {
				state.Status = ModelStatusDownloaded
			}
		} else {
			state.Status = ModelStatusNotDownloaded
		}

		states[i] = state
	}

	return states
}

// DownloadModel скачивает модель
func (m *Manager) DownloadModel(modelID string) error {
	info := GetModelByID(modelID)
	if info == nil {
		return fmt.Errorf("unknown model: %s", modelID)
	}

	m.mu.Lock()
	if _, exists := m.downloads[modelID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("model %s is already downloading", modelID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.downloads[modelID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.downloads, modelID)
			m.mu.Unlock()
		}()

		progressCb := func(progress float64) {
			m.notifyProgress(modelID, progress, ModelStatusDownloading, nil)
		}

		var err error
		if info.IsArchive {
			extractDir := filepath.Join(m.modelsDir, modelID)
			err = DownloadAndExtractTarBz2(ctx, info.DownloadURL, extractDir, info.SizeBytes, progressCb)
		} else {
			err = DownloadFile(ctx, info.DownloadURL, m.GetModelPath(modelID), info.SizeBytes, progressCb)
		}

		if err != nil {
			if ctx.Err() == context.Canceled {
				log.Printf("Download cancelled for model: %s", modelID)
				m.notifyProgress(modelID, 0, ModelStatusNotDownloaded, nil)
				m.cleanupPartialDownload(modelID)
			} else {
				log.Printf("Download failed for model %s: %v", modelID, err)
				m.notifyProgress(modelID, 0, ModelStatusError, err)
			}
			return
		}

		log.Printf("Download completed for model: %s", modelID)
		m.notifyProgress(modelID, 100, ModelStatusDownloaded, nil)
	}()

	return nil
}

// CancelDownload отменяет скачивание модели
func (m *Manager) CancelDownload(modelID string) error {
	m.mu.Lock()
	cancel, exists := m.downloads[modelID]
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("model %s is not downloading", modelID)
	}

	cancel()
	return nil
}

// DeleteModel удаляет скачанную модель
func (m *Manager) DeleteModel(modelID string) error {
	if !m.IsModelDownloaded(modelID) {
		return fmt.Errorf("model %s is not downloaded", modelID)
	}

	m.mu.RLock()
	if m.activeASR == modelID {
		m.mu.RUnlock()
		return fmt.Errorf("cannot delete active model")
	}
	m.mu.RUnlock()

	info := GetModelByID(modelID)
	if info == nil {
		return fmt.Errorf("unknown model: %s", modelID)
	}

	if info.IsArchive {
		if err := os.RemoveAll(filepath.Join(m.modelsDir, modelID)); err != nil {
			return fmt.Errorf("failed to delete model directory: %w", err)
		}
	} else {
		if err := os.Remove(m.GetModelPath(modelID)); err != nil {
			return fmt.Errorf("failed to delete model: %w", err)
		}
	}

	log.Printf("Model deleted: %s", modelID)
	return nil
}

// notifyProgress уведомляет о прогрессе
func (m *Manager) notifyProgress(modelID string, progress float64, status ModelStatus, err error) {
	m.mu.RLock()
	cb := m.onProgress
	m.mu.RUnlock()

	if cb != nil {
		cb(modelID, progress, status, err)
	}
}

// cleanupPartialDownload удаляет частично скачанный файл
func (m *Manager) cleanupPartialDownload(modelID string) {
	info := GetModelByID(modelID)
	if info == nil {
		return
	}

	if info.IsArchive {
		os.RemoveAll(filepath.Join(m.modelsDir, modelID))
		return
	}

	modelPath := m.GetModelPath(modelID)
	os.Remove(modelPath)
	os.Remove(modelPath + ".tmp")
}

// GetDownloadingModels возвращает список скачиваемых моделей
func (m *Manager) GetDownloadingModels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.downloads))
	for id := range m.downloads {
		result = append(result, id)
	}
	return result
}
