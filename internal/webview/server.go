// Package webview serves a live browser preview of received frames.
package webview

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/browser"
	"github.com/pkg/errors"

	"github.com/kvsview/kvsview/internal/display"
	"github.com/kvsview/kvsview/internal/protocol"
	"github.com/kvsview/kvsview/internal/util"
)

const subscriberBuffer = 8

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Served on loopback only
		return true
	},
}

// frameMeta is the text message sent ahead of each binary frame.
type frameMeta struct {
	Seq      uint64 `json:"seq"`
	MIME     string `json:"mime"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
	Timecode string `json:"timecode,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// Server is a display.Display that pushes frames to browsers.
type Server struct {
	addr        string
	broadcaster *Broadcaster

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

var _ display.Display = (*Server)(nil)

func NewServer(addr string) *Server {
	return &Server{
		addr:        addr,
		broadcaster: NewBroadcaster(),
	}
}

// Handler returns the preview routes: "/", "/ws" and "/frame".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/frame", s.handleFrame)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("preview server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			util.GetLogger().Error("Preview server stopped", "error", err)
		}
	}()

	util.GetLogger().Info("Preview server started", "url", s.urlLocked())
	return nil
}

// URL returns the preview page address once started.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	if s.listener == nil {
		return "http://" + s.addr + "/"
	}
	return "http://" + s.listener.Addr().String() + "/"
}

// OpenBrowser opens the preview page in the default browser.
func (s *Server) OpenBrowser() error {
	return browser.OpenURL(s.URL())
}

// Show implements display.Display
func (s *Server) Show(_ context.Context, frame protocol.Frame, info display.Info) error {
	meta, err := json.Marshal(frameMeta{
		Seq:      frame.Seq,
		MIME:     info.MIME,
		Width:    info.Width,
		Height:   info.Height,
		Size:     len(frame.Image),
		Timecode: frame.Timecode,
		Fragment: frame.FragmentMetadata,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode frame metadata")
	}

	s.broadcaster.Broadcast(Message{Meta: meta, Image: frame.Image, MIME: info.MIME})
	return nil
}

// Close disconnects preview clients and stops the HTTP server.
func (s *Server) Close() error {
	s.broadcaster.Close()

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.broadcaster.Latest()
	if !ok {
		http.Error(w, "no frame received yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", msg.MIME)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(msg.Image)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := util.GetLogger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	frames := s.broadcaster.Subscribe(id, subscriberBuffer)
	defer s.broadcaster.Unsubscribe(id)

	// Drain client messages so close frames are noticed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			logger.Debug("Preview client disconnected", "id", id)
			return
		case msg, ok := <-frames:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.Meta); err != nil {
				logger.Debug("Preview write failed", "id", id, "error", err)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, msg.Image); err != nil {
				logger.Debug("Preview write failed", "id", id, "error", err)
				return
			}
		}
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>kvsview</title>
<style>
body { background: #111; color: #ddd; font-family: monospace; margin: 1em; }
img { max-width: 100%; display: block; margin-top: 0.5em; }
</style>
</head>
<body>
<div id="meta">waiting for frames...</div>
<img id="frame" alt="">
<script>
const meta = document.getElementById("meta");
const img = document.getElementById("frame");
let current = null;
let mime = "image/jpeg";
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "blob";
ws.onmessage = (ev) => {
  if (typeof ev.data === "string") {
    const m = JSON.parse(ev.data);
    mime = m.mime;
    meta.textContent = "frame " + m.seq + "  " + m.width + "x" + m.height +
      (m.timecode ? "  timecode " + m.timecode : "") +
      (m.fragment ? "  " + m.fragment : "");
    return;
  }
  const url = URL.createObjectURL(new Blob([ev.data], {type: mime}));
  img.src = url;
  if (current) URL.revokeObjectURL(current);
  current = url;
};
ws.onclose = () => { meta.textContent += "  (stream ended)"; };
</script>
</body>
</html>
`
