package ai

import (
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SpeakerEncoderConfig конфигурация акустической модели эмбеддингов
type SpeakerEncoderConfig struct {
	ModelPath  string
	SampleRate int
	NMels      int
	HopLength  int
	WinLength  int
	NFFT       int
}

// DefaultSpeakerEncoderConfig возвращает стандартную конфигурацию
// для WeSpeaker ResNet34 (80 mels, 10ms hop)
func DefaultSpeakerEncoderConfig(modelPath string) SpeakerEncoderConfig {
	return SpeakerEncoderConfig{
		ModelPath:  modelPath,
		SampleRate: 16000,
		NMels:      80,
		HopLength:  160, // 10ms
		WinLength:  400, // 25ms
		NFFT:       512,
	}
}

// SpeakerEncoder вычисляет speaker-дискриминативные векторы через ONNX
// Реализует FrameEncoder: либо пофреймовый тензор скрытых состояний
// для pooling на уровне фраз, либо один усреднённый вектор сегмента
type SpeakerEncoder struct {
	config       SpeakerEncoderConfig
	session      *ort.DynamicAdvancedSession
	melProcessor *MelProcessor
	mu           sync.Mutex
	initialized  bool
}

// NewSpeakerEncoder создаёт энкодер и загружает модель
func NewSpeakerEncoder(config SpeakerEncoderConfig) (*SpeakerEncoder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}

	encoder := &SpeakerEncoder{
		config: config,
		melProcessor: NewMelProcessor(MelConfig{
			SampleRate: config.SampleRate,
			NMels:      config.NMels,
			HopLength:  config.HopLength,
			WinLength:  config.WinLength,
			NFFT:       config.NFFT,
		}),
	}

	if err := initONNXRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	if err := encoder.loadModel(); err != nil {
		return nil, err
	}

	return encoder, nil
}

func (e *SpeakerEncoder) loadModel() error {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(e.config.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	log.Printf("SpeakerEncoder inputs: %v, outputs: %v", inputNames, outputNames)

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.config.ModelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	e.session = session
	e.initialized = true
	return nil
}

// run запускает инференс и возвращает сырой выход с формой
// WeSpeaker ONNX принимает [1, T, 80] (mel фреймы row-major)
func (e *SpeakerEncoder) run(samples []float32) ([]float32, []int64, error) {
	if !e.initialized {
		return nil, nil, fmt.Errorf("encoder not initialized")
	}

	melSpec, numFrames := e.melProcessor.Compute(samples)

	flatInput := make([]float32, numFrames*e.config.NMels)
	for t := 0; t < numFrames; t++ {
		for m := 0; m < e.config.NMels; m++ {
			flatInput[t*e.config.NMels+m] = melSpec[t][m]
		}
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(e.config.NMels))
	inputTensor, err := ort.NewTensor(inputShape, flatInput)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor := outputs[0].(*ort.Tensor[float32])
	shape := outputTensor.GetShape()

	// Копируем, так как тензор будет уничтожен
	data := outputTensor.GetData()
	result := make([]float32, len(data))
	copy(result, data)

	return result, shape, nil
}

// Frames возвращает пофреймовый тензор скрытых состояний чанка
// Ожидается выход модели [1, F, D]; выход [1, D] (модель отдаёт только
// pooled вектор) разворачивается в тензор из одного фрейма
func (e *SpeakerEncoder) Frames(samples []float32) (*FrameTensor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, shape, err := e.run(samples)
	if err != nil {
		return nil, err
	}

	switch len(shape) {
	case 3:
		return &FrameTensor{
			NumFrames: int(shape[1]),
			Dim:       int(shape[2]),
			Data:      data,
		}, nil
	case 2:
		return &FrameTensor{
			NumFrames: 1,
			Dim:       int(shape[1]),
			Data:      data,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

// Encode возвращает один нормализованный embedding для сегмента
// Используется для enrollment записи профиля спикера
func (e *SpeakerEncoder) Encode(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) < e.config.SampleRate/10 {
		return nil, fmt.Errorf("audio too short")
	}

	data, shape, err := e.run(samples)
	if err != nil {
		return nil, err
	}

	// Пофреймовый выход усредняем сами
	if len(shape) == 3 {
		tensor := &FrameTensor{NumFrames: int(shape[1]), Dim: int(shape[2]), Data: data}
		data = tensor.MeanPool(0, tensor.NumFrames)
	}

	return normalizeVector(data), nil
}

// Close освобождает ресурсы модели
func (e *SpeakerEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.initialized = false
}

// normalizeVector нормализует вектор до единичной длины
func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x * x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm < 1e-6 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// ONNX Runtime глобальная инициализация (один раз на процесс)
var (
	onnxInitialized bool
	onnxInitMu      sync.Mutex
)

func initONNXRuntime() error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()

	if onnxInitialized {
		return nil
	}

	// Путь к shared library: переменная окружения или стандартные места
	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	if libPath == "" {
		searchPaths := []string{
			"./libonnxruntime.so",
			"./libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.dylib",
		}
		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				libPath = path
				break
			}
		}
	}

	if libPath == "" {
		return fmt.Errorf("ONNX Runtime library not found (set ONNXRUNTIME_SHARED_LIBRARY_PATH)")
	}

	log.Printf("Using ONNX Runtime library: %s", libPath)
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}

	onnxInitialized = true
	return nil
}
