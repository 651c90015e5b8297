package web

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/server"
	"github.com/mbocsi/chainlight/services"
)

type mockEffectService struct {
	lastBreath  *services.BreathRequest
	lastFlicker *services.FlickerRequest
	lastTest    *services.TestRequest
	lastPreset  string
	err         error
}

func (m *mockEffectService) info(mode string) (*services.OriginInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.OriginInfo{ID: "origin-test", Mode: mode, Seq: 7, TTL: 40}, nil
}

func (m *mockEffectService) StartBreath(req services.BreathRequest) (*services.OriginInfo, error) {
	m.lastBreath = &req
	return m.info("breath")
}

func (m *mockEffectService) StartFlicker(req services.FlickerRequest) (*services.OriginInfo, error) {
	m.lastFlicker = &req
	return m.info("flicker")
}

func (m *mockEffectService) StartTestChain(req services.TestRequest) (*services.OriginInfo, error) {
	m.lastTest = &req
	return m.info("test")
}

func (m *mockEffectService) ApplyPreset(name string) (*services.OriginInfo, error) {
	m.lastPreset = name
	if name != "red" {
		return nil, services.ServiceError{Code: services.ErrCodeNotFound, Message: "Preset not found: " + name}
	}
	return m.info("breath")
}

func (m *mockEffectService) ListPresets() []string { return []string{"blue", "red"} }

type mockNodeService struct {
	mu    sync.Mutex
	frame []proto.Color
}

func (m *mockNodeService) ListNodes() ([]services.NodeInfo, error) {
	return []services.NodeInfo{{NodeStatus: server.NodeStatus{Index: 0, LEDs: 3}, Role: "last"}}, nil
}

func (m *mockNodeService) GetNode(index int) (*services.NodeInfo, error) {
	if index != 0 {
		return nil, services.ServiceError{Code: services.ErrCodeNotFound, Message: "Node not found"}
	}
	return &services.NodeInfo{NodeStatus: server.NodeStatus{Index: 0, LEDs: 3}, Role: "last"}, nil
}

func (m *mockNodeService) GetFrame(index int) ([]proto.Color, error) {
	if index != 0 {
		return nil, services.ServiceError{Code: services.ErrCodeNotFound, Message: "Node not found"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]proto.Color(nil), m.frame...), nil
}

func (m *mockNodeService) setFrame(frame []proto.Color) {
	m.mu.Lock()
	m.frame = frame
	m.mu.Unlock()
}

func newTestWebClient() (*WebClient, *mockEffectService, *mockNodeService) {
	effect := &mockEffectService{}
	nodes := &mockNodeService{frame: []proto.Color{{}, {}, {}}}
	wc := NewWebClient(&services.ServiceContainer{Effect: effect, Node: nodes}, ":0")
	wc.frameInterval = 5 * time.Millisecond
	return wc, effect, nodes
}

func TestRoutes(t *testing.T) {
	wc, _, _ := newTestWebClient()
	handler := wc.Routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"list nodes", http.MethodGet, "/api/nodes", "", http.StatusOK},
		{"node detail", http.MethodGet, "/api/nodes/0", "", http.StatusOK},
		{"unknown node", http.MethodGet, "/api/nodes/9", "", http.StatusNotFound},
		{"bad index", http.MethodGet, "/api/nodes/abc", "", http.StatusBadRequest},
		{"frame", http.MethodGet, "/api/nodes/0/frame", "", http.StatusOK},
		{"breath", http.MethodPost, "/api/effects/breath", `{"b":255,"rise_ms":900,"fall_ms":1100}`, http.StatusAccepted},
		{"flicker", http.MethodPost, "/api/effects/flicker", `{"on_ms":20,"off_ms":20}`, http.StatusAccepted},
		{"test chain", http.MethodPost, "/api/effects/test", `{"step_ms":50,"r":255}`, http.StatusAccepted},
		{"malformed body", http.MethodPost, "/api/effects/breath", `{"b":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/effects/breath", `{"blue":1}`, http.StatusBadRequest},
		{"presets", http.MethodGet, "/api/presets", "", http.StatusOK},
		{"apply preset", http.MethodPost, "/api/presets/red", "", http.StatusAccepted},
		{"unknown preset", http.MethodPost, "/api/presets/disco", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBreathRequestDecoded(t *testing.T) {
	wc, effect, _ := newTestWebClient()
	body := `{"r":10,"g":20,"b":30,"min":0.1,"max":0.9,"rise_ms":500,"fall_ms":700,"cycles":3,"interrupt":true,"ttl":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/effects/breath", strings.NewReader(body))
	rec := httptest.NewRecorder()
	wc.Routes().ServeHTTP(rec, req)

	if effect.lastBreath == nil {
		t.Fatal("Expected StartBreath to be called")
	}
	got := *effect.lastBreath
	if got.R != 10 || got.G != 20 || got.B != 30 || got.RiseMs != 500 || got.Cycles != 3 || !got.Interrupt {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.TTL == nil || *got.TTL != 5 || got.OffsetMs != nil {
		t.Errorf("Expected ttl 5 and default offset, got %v %v", got.TTL, got.OffsetMs)
	}

	var info services.OriginInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.Seq != 7 || info.Mode != "breath" {
		t.Errorf("Unexpected origin info %+v", info)
	}
}

func TestSendFailureMapsToBadGateway(t *testing.T) {
	wc, effect, _ := newTestWebClient()
	effect.err = services.ServiceError{Code: services.ErrCodeSendFailed, Message: "transport rejected breath command"}

	req := httptest.NewRequest(http.MethodPost, "/api/effects/breath", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	wc.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
	var se services.ServiceError
	if err := json.NewDecoder(rec.Body).Decode(&se); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if se.Code != services.ErrCodeSendFailed {
		t.Errorf("Expected SEND_FAILED body, got %q", se.Code)
	}
}

func TestStripViewer(t *testing.T) {
	wc, _, nodes := newTestWebClient()
	srv := httptest.NewServer(wc.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/strip/0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	read := func() StripFrame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if kind != websocket.BinaryMessage {
			t.Fatalf("Expected binary message, got %d", kind)
		}
		var f StripFrame
		if err := msgpack.Unmarshal(data, &f); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		return f
	}

	first := read()
	if first.Node != 0 || first.Seq != 0 || len(first.Pixels) != 9 {
		t.Errorf("Unexpected first frame %+v", first)
	}
	if wc.Viewers() != 1 {
		t.Errorf("Expected 1 viewer, got %d", wc.Viewers())
	}

	nodes.setFrame([]proto.Color{{R: 1}, {G: 2}, {B: 3}})
	second := read()
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3}
	if second.Seq != 1 || string(second.Pixels) != string(want) {
		t.Errorf("Expected changed frame %v, got %+v", want, second)
	}
}

func TestStripViewerEmptyFrameSentOnce(t *testing.T) {
	wc, _, nodes := newTestWebClient()
	nodes.setFrame(nil)
	srv := httptest.NewServer(wc.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/strip/0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Expected an initial frame, got %v", err)
	}

	// Twenty frame intervals with nothing new to show.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no resend of an unchanged empty frame, got %x", data)
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

func TestStripViewerUnknownNode(t *testing.T) {
	wc, _, _ := newTestWebClient()
	req := httptest.NewRequest(http.MethodGet, "/ws/strip/4", nil)
	rec := httptest.NewRecorder()
	wc.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before upgrade, got %d", rec.Code)
	}
}
