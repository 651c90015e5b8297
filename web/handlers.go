package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/chainlight/services"
)

func (w *WebClient) HandleNodes(wr http.ResponseWriter, r *http.Request) {
	nodes, err := w.services.Node.ListNodes()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, nodes)
}

func (w *WebClient) HandleNodeDetail(wr http.ResponseWriter, r *http.Request) {
	index, err := nodeIndex(r)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	node, err := w.services.Node.GetNode(index)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, node)
}

func (w *WebClient) HandleNodeFrame(wr http.ResponseWriter, r *http.Request) {
	index, err := nodeIndex(r)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	frame, err := w.services.Node.GetFrame(index)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, frame)
}

func (w *WebClient) HandleBreath(wr http.ResponseWriter, r *http.Request) {
	var req services.BreathRequest
	if !decodeBody(w, wr, r, &req) {
		return
	}
	info, err := w.services.Effect.StartBreath(req)
	w.writeOrigin(wr, info, err)
}

func (w *WebClient) HandleFlicker(wr http.ResponseWriter, r *http.Request) {
	var req services.FlickerRequest
	if !decodeBody(w, wr, r, &req) {
		return
	}
	info, err := w.services.Effect.StartFlicker(req)
	w.writeOrigin(wr, info, err)
}

func (w *WebClient) HandleTestChain(wr http.ResponseWriter, r *http.Request) {
	var req services.TestRequest
	if !decodeBody(w, wr, r, &req) {
		return
	}
	info, err := w.services.Effect.StartTestChain(req)
	w.writeOrigin(wr, info, err)
}

func (w *WebClient) HandlePresets(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, w.services.Effect.ListPresets())
}

func (w *WebClient) HandleApplyPreset(wr http.ResponseWriter, r *http.Request) {
	info, err := w.services.Effect.ApplyPreset(chi.URLParam(r, "name"))
	w.writeOrigin(wr, info, err)
}

func (w *WebClient) writeOrigin(wr http.ResponseWriter, info *services.OriginInfo, err error) {
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusAccepted, info)
}

func nodeIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "node index must be an integer", Cause: err}
	}
	return index, nil
}

func decodeBody(w *WebClient, wr http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		w.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "invalid request body", Cause: err})
		return false
	}
	return true
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func (w *WebClient) handleError(wr http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if errors.As(err, &serviceErr) {
		status := http.StatusInternalServerError
		switch serviceErr.Code {
		case services.ErrCodeNotFound:
			status = http.StatusNotFound
		case services.ErrCodeInvalidInput:
			status = http.StatusBadRequest
		case services.ErrCodeSendFailed:
			status = http.StatusBadGateway
		}
		slog.Warn("Service error", "code", serviceErr.Code, "error", err)
		writeJSON(wr, status, serviceErr)
		return
	}

	slog.Error("Internal error", "error", err)
	http.Error(wr, "Internal server error", http.StatusInternalServerError)
}
