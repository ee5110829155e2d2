package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"remove-bg-go/internal/apperr"
	"remove-bg-go/internal/controller"
	"remove-bg-go/internal/inspect"
	"remove-bg-go/internal/removal"
)

const (
	thumbnailSize = 100
	wsWriteWait   = 5 * time.Second
)

//go:embed static/index.html
var indexHTML []byte

type Server struct {
	ctx        context.Context
	ctrl       *controller.Controller
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex
	writeWait  time.Duration
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type SettingsRequest struct {
	ImportFolder string `json:"import_folder"`
	ExportFolder string `json:"export_folder"`
}

type SelectRequest struct {
	Paths []string `json:"paths"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer wires the HTTP API around ctrl. Batches started over HTTP live as long as ctx.
func NewServer(ctx context.Context, ctrl *controller.Controller, log *logrus.Logger) *Server {
	s := &Server{
		ctx:       ctx,
		ctrl:      ctrl,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		writeWait: wsWriteWait,
		// A nil CheckOrigin rejects upgrades whose Origin host differs from Host.
		wsUpgrader: websocket.Upgrader{},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(requireJSON)
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleSaveSettings).Methods("POST")
	api.HandleFunc("/images", s.handleListImages).Methods("GET")
	api.HandleFunc("/select", s.handleSelect).Methods("POST")
	api.HandleFunc("/remove", s.handleRemove).Methods("POST")
	api.HandleFunc("/open-export", s.handleOpenExport).Methods("POST")
	api.HandleFunc("/thumbnail", s.handleThumbnail).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// requireJSON rejects POSTs that are not application/json. Browsers cannot send
// that type cross-origin without a preflight, which this server never answers.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				json.NewEncoder(w).Encode(APIResponse{Success: false, Error: "Content-Type must be application/json"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) statusData() map[string]interface{} {
	data := map[string]interface{}{
		"state":      s.ctrl.Snapshot(),
		"statistics": nil,
	}
	if stats := s.ctrl.Stats(); stats != nil {
		snap := stats.Snapshot()
		data["statistics"] = snap
		data["summary"] = stats.GetSummary()
		if snap["failed"] != int64(0) {
			data["errors"] = stats.GetErrorSummary()
		}
	}
	return data
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{Success: true, Data: s.statusData()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Snapshot()
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: SettingsRequest{
			ImportFolder: st.ImportFolder,
			ExportFolder: st.ExportFolder,
		},
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ctrl.ConfigureFolders(req.ImportFolder, req.ExportFolder); err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Message: "Settings saved"})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	infos, err := s.ctrl.Candidates()
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to list images: %v", err), http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []inspect.Info{}
	}
	cache := s.ctrl.InspectorStats()
	s.log.WithFields(logrus.Fields{"images": len(infos), "cache_hit_rate": cache.HitRate}).Debug("Listed images")
	s.writeJSON(w, APIResponse{Success: true, Data: infos})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	n := s.ctrl.SelectInputs(req.Paths)
	s.broadcastWSMessage("state", s.ctrl.Snapshot())
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("%d image(s) selected", n),
		Data:    s.ctrl.Snapshot(),
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	events, err := s.ctrl.StartRemoval(s.ctx)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	st := s.ctrl.Snapshot()
	s.broadcastWSMessage("started", st)
	go s.ctrl.Pump(s.ctx, events, s.broadcastEvent)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Removal started",
		Data:    map[string]interface{}{"batch_id": st.BatchID},
	})
}

func (s *Server) handleOpenExport(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.OpenExportFolder(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Message: "Export folder opened"})
}

// handleThumbnail serves a small PNG preview. Only currently selected inputs and
// produced outputs are served.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !s.known(path) {
		s.writeError(w, "Unknown image", http.StatusNotFound)
		return
	}

	thumb, err := inspect.Thumbnail(path, thumbnailSize)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to render thumbnail: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := imaging.Encode(w, thumb, imaging.PNG); err != nil {
		s.log.Errorf("Failed to write thumbnail: %v", err)
	}
}

func (s *Server) known(path string) bool {
	if path == "" {
		return false
	}
	st := s.ctrl.Snapshot()
	for _, list := range [][]string{st.Inputs, st.Processed} {
		for _, p := range list {
			if p == path {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

// broadcastEvent forwards a handled worker event together with the resulting state.
func (s *Server) broadcastEvent(ev removal.Event) {
	data := map[string]interface{}{"state": s.ctrl.Snapshot()}

	var kind string
	switch e := ev.(type) {
	case removal.Progress:
		kind = "progress"
		data["percent"] = e.Percent
	case removal.ItemDone:
		kind = "item_done"
		data["input"] = e.Input
		data["output"] = e.Output
		data["format"] = e.Format
	case removal.Failed:
		kind = "failed"
		data["input"] = e.Input
		if e.Err != nil {
			data["error"] = e.Err.Error()
		}
	case removal.Done:
		kind = "done"
		data["outputs"] = e.Outputs
		if stats := s.ctrl.Stats(); stats != nil {
			data["statistics"] = stats.Snapshot()
		}
	default:
		return
	}

	s.broadcastWSMessage(kind, data)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	msgBytes, err := json.Marshal(WSMessage{Type: messageType, Data: data})
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Writes are serialized; gorilla connections allow one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		conn.SetWriteDeadline(time.Now().Add(s.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

// writeFailure maps controller errors onto HTTP status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, controller.ErrBatchRunning):
		status = http.StatusConflict
	case errors.Is(err, controller.ErrNoInputs), apperr.IsKind(err, apperr.KindConfiguration):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if errors.Is(err, controller.ErrNoInputs) {
		msg = controller.StatusSelectFirst
	}
	s.writeError(w, msg, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
