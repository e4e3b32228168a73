package api

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"phrasecast/internal/config"
	"phrasecast/internal/service"
	"phrasecast/models"
	"phrasecast/voiceprint"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// jsonClient is a lightweight gRPC JSON client for the Control stream.
type jsonClient struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

func newJSONClient(t *testing.T, addr string) *jsonClient {
	t.Helper()

	conn, err := grpc.Dial(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			if len(addr) > 5 && addr[:5] == "unix:" {
				return net.DialTimeout("unix", addr[5:], 3*time.Second)
			}
			return net.DialTimeout("tcp", addr, 3*time.Second)
		}),
	)
	if err != nil {
		t.Fatalf("dial grpc: %v", err)
	}

	stream, err := conn.NewStream(context.Background(), &_Control_serviceDesc.Streams[0], "/phrasecast.Control/Stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	return &jsonClient{conn: conn, stream: stream}
}

func (c *jsonClient) send(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	// Send as generic interface{} so ForceCodec(jsonCodec{}) kicks in on server
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return err
	}
	return c.stream.SendMsg(any)
}

func (c *jsonClient) recv(timeout time.Duration) (Message, error) {
	var msg Message
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	recvDone := make(chan error, 1)
	go func() { recvDone <- c.stream.RecvMsg(&msg) }()
	select {
	case err := <-recvDone:
		return msg, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *jsonClient) close() {
	_ = c.stream.CloseSend()
	_ = c.conn.Close()
}

// startTestServer запускает минимальный сервер с unix сокетом.
// Микрофон в тестах не нужен, Capture остаётся nil
func startTestServer(t *testing.T, socketPath string) *Server {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		DataDir:   dataDir,
		ModelsDir: filepath.Join(dataDir, "models"),
		Port:      "0",
		GRPCAddr:  "unix:" + socketPath,
	}

	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		t.Fatalf("model manager: %v", err)
	}
	store, err := voiceprint.NewStore(dataDir)
	if err != nil {
		t.Fatalf("voiceprint store: %v", err)
	}
	diar := service.NewDiarizationService(service.DiarizationConfig{}, modelMgr, store)

	s := NewServer(cfg, modelMgr, nil, diar)

	go s.startGRPCServer()
	time.Sleep(300 * time.Millisecond) // дать сокету создаться
	return s
}

func TestControlStream_ModelsAndSpeakers(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "control.sock")

	s := startTestServer(t, socket)

	client := newJSONClient(t, s.Config.GRPCAddr)
	defer client.close()

	if err := client.send(Message{Type: MsgGetModels}); err != nil {
		t.Fatalf("send get_models: %v", err)
	}
	if err := client.send(Message{Type: MsgListSpeakers}); err != nil {
		t.Fatalf("send list_speakers: %v", err)
	}

	gotModels := false
	gotSpeakers := false
	timeout := time.After(2 * time.Second)

	for !(gotModels && gotSpeakers) {
		select {
		case <-timeout:
			t.Fatalf("timeout waiting for responses: models=%v speakers=%v", gotModels, gotSpeakers)
		default:
			msg, err := client.recv(2 * time.Second)
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			switch msg.Type {
			case MsgModelsList:
				if len(msg.Models) != len(models.Registry) {
					t.Errorf("models_list has %d entries, registry has %d", len(msg.Models), len(models.Registry))
				}
				gotModels = true
			case MsgSpeakersList:
				gotSpeakers = true
			}
		}
	}
}

func TestControlStream_ImportSpeakers(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "control3.sock")

	s := startTestServer(t, socket)

	client := newJSONClient(t, s.Config.GRPCAddr)
	defer client.close()

	imported := []voiceprint.Enrollment{
		{ID: "b1946ac9-0001-4a1e-8a12-000000000001", Name: "Анна", Centroid: []float32{1, 0, 0}},
		{ID: "b1946ac9-0002-4a1e-8a12-000000000002", Name: "Борис", Centroid: []float32{0, 1, 0}},
	}
	if err := client.send(Message{Type: MsgImportSpeakers, Speakers: imported}); err != nil {
		t.Fatalf("send import_speakers: %v", err)
	}

	msg, err := client.recv(2 * time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Type != MsgSpeakersList {
		t.Fatalf("import should broadcast speakers_list, got %s", msg.Type)
	}
	if len(msg.Speakers) != 2 {
		t.Fatalf("speakers_list has %d entries, expected 2", len(msg.Speakers))
	}
	if msg.Speakers[0].Name != "Анна" || msg.Speakers[1].Name != "Борис" {
		t.Errorf("imported names lost: %q, %q", msg.Speakers[0].Name, msg.Speakers[1].Name)
	}

	// Пустой набор отвечается ошибкой, профили не трогаются
	if err := client.send(Message{Type: MsgImportSpeakers}); err != nil {
		t.Fatalf("send empty import: %v", err)
	}
	msg, err = client.recv(2 * time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Type != MsgError {
		t.Errorf("empty import should answer with error, got %s", msg.Type)
	}

	// Профиль без центроида отклоняется целиком
	bad := []voiceprint.Enrollment{{ID: "b1946ac9-0003-4a1e-8a12-000000000003", Name: "Пустой"}}
	if err := client.send(Message{Type: MsgImportSpeakers, Speakers: bad}); err != nil {
		t.Fatalf("send bad import: %v", err)
	}
	msg, err = client.recv(2 * time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Type != MsgError {
		t.Errorf("import without centroid should answer with error, got %s", msg.Type)
	}
}

func TestControlStream_UnknownType(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "control2.sock")

	s := startTestServer(t, socket)

	client := newJSONClient(t, s.Config.GRPCAddr)
	defer client.close()

	if err := client.send(Message{Type: "definitely_not_a_thing"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, err := client.recv(2 * time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Type != MsgError {
		t.Errorf("unknown type should answer with error, got %s", msg.Type)
	}
}
