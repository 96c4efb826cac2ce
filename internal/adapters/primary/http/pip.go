package httpapi

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

func (s *Server) handlePiPFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.pip.Frame(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	_, _ = w.Write(frame)
}

// handlePiPStream pousse chaque redessin en MJPEG jusqu'à la déconnexion
// du viewer ou l'arrêt du renderer.
func (s *Server) handlePiPStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, r, fmt.Errorf("streaming unsupported by %T", w))
		return
	}

	frames, cancel := s.pip.Subscribe()
	defer cancel()

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Debug("👀 PiP viewer attached", "remote", r.RemoteAddr)
	defer slog.Debug("PiP viewer detached", "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				_ = mw.Close()
				return
			}
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(frame))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
