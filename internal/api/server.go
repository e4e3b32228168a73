package api

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"phrasecast/audio"
	"phrasecast/internal/config"
	"phrasecast/internal/service"
	"phrasecast/models"
	"phrasecast/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// replySink абстракция над транспортом клиента: WebSocket соединение
// или gRPC stream. Реализации обязаны сериализовать свои записи
type replySink interface {
	send(msg Message) error
}

// wsSink WebSocket клиент. gorilla WriteJSON не потокобезопасен,
// поэтому каждый sink несёт собственный mutex
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsSink) send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

type Server struct {
	Config      *config.Config
	ModelMgr    *models.Manager
	Capture     *audio.Capture
	Diarization *service.DiarizationService

	clients map[replySink]bool
	mu      sync.Mutex

	// Прокачка микрофона в сервис
	micStop chan struct{}
	micWG   sync.WaitGroup
}

func NewServer(
	cfg *config.Config,
	modMgr *models.Manager,
	cap *audio.Capture,
	diar *service.DiarizationService,
) *Server {
	s := &Server{
		Config:      cfg,
		ModelMgr:    modMgr,
		Capture:     cap,
		Diarization: diar,
		clients:     make(map[replySink]bool),
	}
	s.setupCallbacks()
	return s
}

func (s *Server) Start() {
	if s.Config.GRPCAddr != "" {
		go s.startGRPCServer()
	}

	http.HandleFunc("/ws", s.handleWebSocket)

	log.Printf("Backend listening on :%s", s.Config.Port)
	if err := http.ListenAndServe(":"+s.Config.Port, nil); err != nil {
		log.Fatal("ListenAndServe:", err)
	}
}

func (s *Server) setupCallbacks() {
	// Прогресс скачивания моделей
	s.ModelMgr.SetProgressCallback(func(modelID string, progress float64, status models.ModelStatus, err error) {
		errStr := ""
		if err != nil {
			errStr = err.Error()
		}
		s.broadcast(Message{
			Type:     MsgModelProgress,
			ModelID:  modelID,
			Progress: progress,
			Data:     string(status),
			Error:    errStr,
		})
	})

	// Результаты чанков
	s.Diarization.OnChunk = func(result *session.ChunkResult) {
		s.broadcast(Message{Type: MsgChunkResult, Result: result})
	}
	s.Diarization.OnError = func(err error) {
		s.broadcast(Message{Type: MsgChunkFailed, Error: err.Error()})
	}
}

func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	sinks := make([]replySink, 0, len(s.clients))
	for sink := range s.clients {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.send(msg); err != nil {
			log.Printf("Write error: %v", err)
			s.removeClient(sink)
		}
	}
}

func (s *Server) addClient(sink replySink) {
	s.mu.Lock()
	s.clients[sink] = true
	s.mu.Unlock()
}

func (s *Server) removeClient(sink replySink) {
	s.mu.Lock()
	delete(s.clients, sink)
	s.mu.Unlock()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade:", err)
		return
	}

	sink := &wsSink{conn: conn}
	s.addClient(sink)

	defer func() {
		s.removeClient(sink)
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Println("Read:", err)
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			// Бинарные фреймы это аудио: PCM16 LE mono 16kHz
			s.Diarization.StreamAudio(pcm16ToFloat32(data))
		case websocket.TextMessage:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				sink.send(Message{Type: MsgError, Error: "malformed message"})
				continue
			}
			s.processMessage(sink, msg)
		}
	}
}

func (s *Server) processMessage(sink replySink, msg Message) {
	switch msg.Type {
	case MsgGetDevices:
		devices, err := s.Capture.ListDevices()
		if err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		sink.send(Message{Type: MsgDevices, Devices: devices})

	case MsgGetModels:
		sink.send(Message{Type: MsgModelsList, Models: s.ModelMgr.GetAllModelsState()})

	case MsgDownloadModel:
		if msg.ModelID == "" {
			sink.send(Message{Type: MsgError, Error: "modelId is required"})
			return
		}
		if err := s.ModelMgr.DownloadModel(msg.ModelID); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}

	case MsgCancelDownload:
		if msg.ModelID == "" {
			sink.send(Message{Type: MsgError, Error: "modelId is required"})
			return
		}
		s.ModelMgr.CancelDownload(msg.ModelID)
		sink.send(Message{Type: MsgModelsList, Models: s.ModelMgr.GetAllModelsState()})

	case MsgDeleteModel:
		if msg.ModelID == "" {
			sink.send(Message{Type: MsgError, Error: "modelId is required"})
			return
		}
		if err := s.ModelMgr.DeleteModel(msg.ModelID); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		sink.send(Message{Type: MsgModelsList, Models: s.ModelMgr.GetAllModelsState()})

	case MsgStartSession:
		model := msg.Model
		if model == "" {
			model = s.Config.ASRModel
		}
		if err := s.Diarization.Start(model); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}

		if msg.UseMic {
			if err := s.startMicPump(msg.MicDevice); err != nil {
				s.Diarization.Stop()
				sink.send(Message{Type: MsgError, Error: err.Error()})
				return
			}
		}
		sink.send(Message{Type: MsgSessionStarted, Model: model})

	case MsgStopSession:
		s.stopMicPump()
		// Финализируем остаток буфера: его результат уйдёт через OnChunk
		s.Diarization.Finish()
		s.Diarization.Stop()
		sink.send(Message{Type: MsgSessionStopped})

	case MsgResetSession:
		s.Diarization.ResetSession(msg.PreserveEnrolled)
		sink.send(Message{Type: MsgSessionReset})

	case MsgEnrollSpeaker:
		if msg.Name == "" || msg.Audio == "" {
			sink.send(Message{Type: MsgError, Error: "name and audio are required"})
			return
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			sink.send(Message{Type: MsgError, Error: "audio is not valid base64"})
			return
		}
		enrollment, err := s.Diarization.EnrollSpeaker(msg.Name, pcm16ToFloat32(raw))
		if err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		sink.send(Message{Type: MsgSpeakerEnrolled, SpeakerID: enrollment.ID, Name: enrollment.Name})
		s.broadcast(Message{Type: MsgSpeakersList, Speakers: s.Diarization.ListSpeakers()})

	case MsgListSpeakers:
		sink.send(Message{Type: MsgSpeakersList, Speakers: s.Diarization.ListSpeakers()})

	case MsgRenameSpeaker:
		if msg.SpeakerID == "" || msg.Name == "" {
			sink.send(Message{Type: MsgError, Error: "speakerId and name are required"})
			return
		}
		if err := s.Diarization.RenameSpeaker(msg.SpeakerID, msg.Name); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		s.broadcast(Message{Type: MsgSpeakersList, Speakers: s.Diarization.ListSpeakers()})

	case MsgDeleteSpeaker:
		if msg.SpeakerID == "" {
			sink.send(Message{Type: MsgError, Error: "speakerId is required"})
			return
		}
		if err := s.Diarization.DeleteSpeaker(msg.SpeakerID); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		s.broadcast(Message{Type: MsgSpeakersList, Speakers: s.Diarization.ListSpeakers()})

	case MsgImportSpeakers:
		if len(msg.Speakers) == 0 {
			sink.send(Message{Type: MsgError, Error: "speakers are required"})
			return
		}
		if err := s.Diarization.ImportSpeakers(msg.Speakers); err != nil {
			sink.send(Message{Type: MsgError, Error: err.Error()})
			return
		}
		s.broadcast(Message{Type: MsgSpeakersList, Speakers: s.Diarization.ListSpeakers()})

	case MsgResetSpeakers:
		s.Diarization.ResetSession(msg.PreserveEnrolled)
		sink.send(Message{Type: MsgSpeakersReset})

	default:
		sink.send(Message{Type: MsgError, Error: "unknown message type: " + string(msg.Type)})
	}
}

// startMicPump запускает микрофон и гонит его данные в сервис
func (s *Server) startMicPump(deviceID string) error {
	if err := s.Capture.SetDevice(deviceID); err != nil {
		return err
	}
	s.Capture.ClearBuffers()
	if err := s.Capture.Start(); err != nil {
		return err
	}

	s.micStop = make(chan struct{})
	s.micWG.Add(1)
	go func() {
		defer s.micWG.Done()
		for {
			select {
			case <-s.micStop:
				return
			case samples := <-s.Capture.Data():
				s.Diarization.StreamAudio(samples)
			}
		}
	}()
	return nil
}

func (s *Server) stopMicPump() {
	if s.micStop == nil {
		return
	}
	s.Capture.Stop()
	close(s.micStop)
	s.micWG.Wait()
	s.micStop = nil
}

// pcm16ToFloat32 конвертирует PCM16 LE в float32 [-1, 1]
func pcm16ToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / float32(math.MaxInt16)
	}
	return samples
}
