// Package models предоставляет управление моделями распознавания
package models

// EngineType тип движка
type EngineType string

const (
	EngineTypeASR     EngineType = "asr"     // Transducer ASR (sherpa-onnx)
	EngineTypeSpeaker EngineType = "speaker" // Speaker embedding
)

// ModelInfo информация о модели
type ModelInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Engine      EngineType `json:"engine"`
	Size        string     `json:"size"`
	SizeBytes   int64      `json:"sizeBytes"`
	Description string     `json:"description"`
	Languages   []string   `json:"languages"`
	Recommended bool       `json:"recommended,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`

	// IsArchive модель распространяется как tar.bz2 архив
	// (transducer: encoder + decoder + joiner + tokens)
	IsArchive bool `json:"isArchive,omitempty"`
}

// ModelStatus статус модели на устройстве
type ModelStatus string

const (
	ModelStatusNotDownloaded ModelStatus = "not_downloaded"
	ModelStatusDownloading   ModelStatus = "downloading"
	ModelStatusDownloaded    ModelStatus = "downloaded"
	ModelStatusActive        ModelStatus = "active"
	ModelStatusError         ModelStatus = "error"
)

// ModelState состояние модели с информацией
type ModelState struct {
	ModelInfo
	Status   ModelStatus `json:"status"`
	Progress float64     `json:"progress,omitempty"` // 0-100
	Error    string      `json:"error,omitempty"`
	Path     string      `json:"path,omitempty"`
}

// Registry реестр доступных моделей
var Registry = []ModelInfo{
	// ===== Transducer ASR модели (sherpa-onnx) =====
	{
		ID:          "zipformer-en-2023-06-26",
		Name:        "Zipformer EN",
		Engine:      EngineTypeASR,
		Size:        "290 MB",
		SizeBytes:   290_000_000,
		Description: "Zipformer transducer для английского с пословными таймстемпами",
		Languages:   []string{"en"},
		Recommended: true,
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-zipformer-en-2023-06-26.tar.bz2",
	},
	{
		ID:          "zipformer-small-en-2023-06-26",
		Name:        "Zipformer Small EN",
		Engine:      EngineTypeASR,
		Size:        "88 MB",
		SizeBytes:   88_000_000,
		Description: "Компактная модель для английского, быстрее полной",
		Languages:   []string{"en"},
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-zipformer-small-en-2023-06-26.tar.bz2",
	},
	{
		ID:          "zipformer-ru-2024-09-18",
		Name:        "Zipformer RU",
		Engine:      EngineTypeASR,
		Size:        "270 MB",
		SizeBytes:   270_000_000,
		Description: "Zipformer transducer для русского языка",
		Languages:   []string{"ru"},
		Recommended: true,
		IsArchive:   true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-zipformer-ru-2024-09-18.tar.bz2",
	},

	// ===== Speaker embedding модели =====
	{
		ID:          "wespeaker-voxceleb-resnet34",
		Name:        "WeSpeaker ResNet34",
		Engine:      EngineTypeSpeaker,
		Size:        "26 MB",
		SizeBytes:   26_851_029,
		Description: "Speaker embedding (WeSpeaker ResNet34)",
		Languages:   []string{"multi"},
		Recommended: true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/wespeaker_en_voxceleb_resnet34.onnx",
	},
	{
		ID:          "3dspeaker-speech-eres2net",
		Name:        "3D-Speaker ERes2Net",
		Engine:      EngineTypeSpeaker,
		Size:        "25 MB",
		SizeBytes:   25_000_000,
		Description: "Speaker embedding (3D-Speaker, Alibaba)",
		Languages:   []string{"multi"},
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/3dspeaker_speech_eres2net_base_sv_zh-cn_3dspeaker_16k.onnx",
	},
}

// GetModelsByEngine возвращает модели для определённого движка
func GetModelsByEngine(engine EngineType) []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Engine == engine {
			result = append(result, m)
		}
	}
	return result
}

// GetModelByID возвращает модель по ID
func GetModelByID(id string) *ModelInfo {
	for _, m := range Registry {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

// GetRecommendedModels возвращает рекомендуемые модели
func GetRecommendedModels() []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Recommended {
			result = append(result, m)
		}
	}
	return result
}
