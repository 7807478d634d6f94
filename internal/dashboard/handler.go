package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/arenasync/arenasync/internal/store"
	"github.com/arenasync/arenasync/internal/sync"
)

// RunCompleteData summarizes a finished run.
type RunCompleteData struct {
	RunID            string   `json:"run_id"`
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	UpdatedOrCreated int      `json:"updated_or_created"`
	StatusMessages   []string `json:"status_messages"`
	DurationMs       int64    `json:"duration_ms"`
}

// StatsData contains document store statistics
type StatsData struct {
	Documents int            `json:"documents"`
	Orphans   int            `json:"orphans"`
	Assets    int            `json:"assets"`
	Channels  map[string]int `json:"channels"`
}

// Handler formats engine output as dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	// SkipHeartbeats drops heartbeat events instead of broadcasting them.
	SkipHeartbeats bool
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, logger: logger}
}

// OnEvent broadcasts one engine event. It has the signature of
// sync.Options.OnLog.
func (h *Handler) OnEvent(ev sync.Event) {
	if h.SkipHeartbeats && ev.Msg == "heartbeat" {
		return
	}
	h.send(MessageTypeEvent, ev, ev.Time)
}

// OnRunComplete broadcasts the summary of a finished run.
func (h *Handler) OnRunComplete(res *sync.RunResult, elapsed time.Duration) {
	if res == nil {
		return
	}
	h.logger.Printf("Run %s complete: %s", res.SyncRunID, res.Message)
	h.send(MessageTypeRunComplete, RunCompleteData{
		RunID:            res.SyncRunID,
		Success:          res.Success,
		Message:          res.Message,
		UpdatedOrCreated: res.UpdatedOrCreated,
		StatusMessages:   res.StatusMessages,
		DurationMs:       elapsed.Milliseconds(),
	}, time.Time{})
}

// OnStats broadcasts store statistics and keeps them as the welcome message
// for clients that connect later.
func (h *Handler) OnStats(st *store.Stats) {
	if st == nil {
		return
	}
	msg, ok := h.message(MessageTypeStats, StatsData{
		Documents: st.Documents,
		Orphans:   st.Orphans,
		Assets:    st.Assets,
		Channels:  st.Channels,
	}, time.Now())
	if !ok {
		return
	}
	h.server.SetWelcome(msg)
	h.server.Broadcast(msg)
}

func (h *Handler) send(typ MessageType, data any, ts time.Time) {
	if msg, ok := h.message(typ, data, ts); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) message(typ MessageType, data any, ts time.Time) (Message, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return Message{}, false
	}
	return Message{Type: typ, Timestamp: ts, Data: raw}, true
}
