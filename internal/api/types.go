package api

import (
	"phrasecast/audio"
	"phrasecast/models"
	"phrasecast/session"
	"phrasecast/voiceprint"
)

// MessageType тип сообщения control канала
// Набор закрытый: неизвестный тип отвечается ошибкой
type MessageType string

const (
	// Запросы клиента
	MsgGetDevices     MessageType = "get_devices"
	MsgGetModels      MessageType = "get_models"
	MsgDownloadModel  MessageType = "download_model"
	MsgCancelDownload MessageType = "cancel_download"
	MsgDeleteModel    MessageType = "delete_model"
	MsgStartSession   MessageType = "start_session"
	MsgStopSession    MessageType = "stop_session"
	MsgResetSession   MessageType = "reset_session"
	MsgEnrollSpeaker  MessageType = "enroll_speaker"
	MsgListSpeakers   MessageType = "list_speakers"
	MsgRenameSpeaker  MessageType = "rename_speaker"
	MsgDeleteSpeaker  MessageType = "delete_speaker"
	MsgImportSpeakers MessageType = "import_speakers"
	MsgResetSpeakers  MessageType = "reset_speakers"

	// Ответы и push-уведомления сервера
	MsgDevices         MessageType = "devices"
	MsgModelsList      MessageType = "models_list"
	MsgModelProgress   MessageType = "model_progress"
	MsgSessionStarted  MessageType = "session_started"
	MsgSessionStopped  MessageType = "session_stopped"
	MsgSessionReset    MessageType = "session_reset"
	MsgChunkResult     MessageType = "chunk_result"
	MsgChunkFailed     MessageType = "chunk_failed"
	MsgSpeakerEnrolled MessageType = "speaker_enrolled"
	MsgSpeakersList    MessageType = "speakers_list"
	MsgSpeakersReset   MessageType = "speakers_reset"
	MsgError           MessageType = "error"
)

// Message структура control канала (WebSocket и gRPC stream)
type Message struct {
	Type MessageType `json:"type"`
	Data string      `json:"data,omitempty"`

	// start_session
	Model     string `json:"model,omitempty"`
	MicDevice string `json:"micDevice,omitempty"`
	UseMic    bool   `json:"useMic,omitempty"`

	// Спикеры
	Name             string  `json:"name,omitempty"`
	SpeakerID        string  `json:"speakerId,omitempty"`
	PreserveEnrolled bool    `json:"preserveEnrolled,omitempty"`
	// Audio base64 PCM16 LE mono 16kHz (enroll_speaker)
	Audio string `json:"audio,omitempty"`

	// Модели
	ModelID  string  `json:"modelId,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Error    string  `json:"error,omitempty"`

	// Ответы; Speakers также несёт входной набор для import_speakers
	Devices  []audio.Device          `json:"devices,omitempty"`
	Models   []models.ModelState     `json:"models,omitempty"`
	Speakers []voiceprint.Enrollment `json:"speakers,omitempty"`
	Result   *session.ChunkResult    `json:"result,omitempty"`
}
