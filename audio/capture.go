package audio

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device описание аудио устройства для UI
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsInput bool   `json:"isInput"`
}

// Capture захват аудио с микрофона
// Отдаёт mono float32 на частоте пайплайна (16 кГц)
type Capture struct {
	ctx *malgo.AllocatedContext

	device   *malgo.Device
	deviceID *malgo.DeviceID

	sampleRate int
	dataChan   chan []float32

	mu      sync.Mutex
	running bool
}

// NewCapture создаёт захват
// sampleRate = 0 означает 16000
func NewCapture(sampleRate int) (*Capture, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		// Большой буфер чтобы не терять данные при медленной обработке
		dataChan: make(chan []float32, 1000),
	}, nil
}

// ListDevices возвращает доступные устройства захвата
func (c *Capture) ListDevices() ([]Device, error) {
	captureDevices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]Device, 0, len(captureDevices))
	for _, dev := range captureDevices {
		devices = append(devices, Device{
			ID:      deviceIDToString(dev.ID),
			Name:    dev.Name(),
			IsInput: true,
		})
	}
	return devices, nil
}

// FindDeviceByName ищет устройство по имени (частичное совпадение)
func (c *Capture) FindDeviceByName(name string) (*malgo.DeviceID, error) {
	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}

	nameLower := strings.ToLower(name)
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), nameLower) {
			id := dev.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}

// SetDevice устанавливает устройство по ID
// Пустая строка или "default" возвращает системное устройство по умолчанию
func (c *Capture) SetDevice(deviceID string) error {
	if deviceID == "" || deviceID == "default" {
		c.deviceID = nil
		return nil
	}

	id, err := stringToDeviceID(deviceID)
	if err != nil {
		return err
	}
	c.deviceID = id
	return nil
}

// SetDeviceByName устанавливает устройство по имени (частичное совпадение)
func (c *Capture) SetDeviceByName(name string) error {
	if name == "" {
		c.deviceID = nil
		return nil
	}

	id, err := c.FindDeviceByName(name)
	if err != nil {
		return err
	}
	c.deviceID = id
	log.Printf("Capture device set: %s", name)
	return nil
}

// Start начинает захват
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("already running")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if c.deviceID != nil {
		deviceConfig.Capture.DeviceID = c.deviceID.Pointer()
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		sampleCount := int(framecount)
		if len(pInputSamples) != sampleCount*4 {
			return
		}

		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 |
				uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}

		// Блокируемся если буфер полон - не теряем данные
		c.dataChan <- samples
	}

	var err error
	c.device, err = malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return err
	}

	if err := c.device.Start(); err != nil {
		c.device.Uninit()
		c.device = nil
		return err
	}

	c.running = true
	log.Println("Microphone capture started")
	return nil
}

// Stop останавливает захват
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.running = false
	log.Println("Microphone capture stopped")
	return nil
}

// Data возвращает канал с аудио данными
func (c *Capture) Data() <-chan []float32 {
	return c.dataChan
}

// ClearBuffers выбрасывает накопленные данные
// Вызывается перед началом новой сессии
func (c *Capture) ClearBuffers() {
	for {
		select {
		case <-c.dataChan:
		default:
			return
		}
	}
}

// Close освобождает ресурсы
func (c *Capture) Close() {
	c.Stop()
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
	}
}

func deviceIDToString(id malgo.DeviceID) string {
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}

func stringToDeviceID(s string) (*malgo.DeviceID, error) {
	if len(s) > 32 {
		return nil, fmt.Errorf("device ID too long")
	}
	var id malgo.DeviceID
	copy(id[:], []byte(s))
	return &id, nil
}
