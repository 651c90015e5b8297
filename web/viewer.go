package web

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mbocsi/chainlight/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// StripFrame is one msgpack-encoded viewer message. Pixels holds packed RGB
// triples.
type StripFrame struct {
	Node   int    `msgpack:"node"`
	Seq    uint64 `msgpack:"seq"`
	Pixels []byte `msgpack:"px"`
}

func encodeFrame(node int, seq uint64, frame []proto.Color) ([]byte, error) {
	px := make([]byte, 0, 3*len(frame))
	for _, c := range frame {
		px = append(px, c.R, c.G, c.B)
	}
	return msgpack.Marshal(StripFrame{Node: node, Seq: seq, Pixels: px})
}

// HandleStripViewer streams a node's strip as binary frames whenever it changes.
func (w *WebClient) HandleStripViewer(wr http.ResponseWriter, r *http.Request) {
	index, err := nodeIndex(r)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	if _, err := w.services.Node.GetFrame(index); err != nil {
		w.handleError(wr, err)
		return
	}

	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		slog.Warn("Viewer upgrade failed", "error", err)
		return
	}
	id := "viewer-" + uuid.NewString()
	w.mu.Lock()
	w.viewers[id] = struct{}{}
	w.mu.Unlock()
	slog.Info("Strip viewer connected", "id", id, "node", index, "remote", r.RemoteAddr)

	defer func() {
		w.mu.Lock()
		delete(w.viewers, id)
		w.mu.Unlock()
		conn.Close()
		slog.Info("Strip viewer disconnected", "id", id)
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(w.frameInterval)
	defer ticker.Stop()

	var last []proto.Color
	var seq uint64
	for {
		frame, err := w.services.Node.GetFrame(index)
		if err != nil {
			slog.Warn("Viewer frame unavailable", "id", id, "error", err)
			return
		}
		if seq == 0 || !slices.Equal(frame, last) {
			data, err := encodeFrame(index, seq, frame)
			if err != nil {
				slog.Error("Failed to encode strip frame", "error", err)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				slog.Debug("Viewer write failed", "id", id, "error", err)
				return
			}
			last = frame
			seq++
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
