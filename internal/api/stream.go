package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowctl/internal/emitter"
	"github.com/lyzr/flowctl/internal/platform/logger"
)

// upgrader mirrors the teacher's cmd/fanout upgrader: origin checking is
// left to a reverse proxy in front of this service, not this handler.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// streamHandler implements `stream(runId)` (§6): subscribe to trace
// events over a WebSocket. Grounded on cmd/fanout's Hub/Client split, but
// collapsed to one goroutine per connection since internal/emitter
// already keeps its own per-run subscriber set — no separate hub needed
// in-process.
type streamHandler struct {
	emitter *emitter.Emitter
	log     *logger.Logger
}

func newStreamHandler(em *emitter.Emitter, log *logger.Logger) *streamHandler {
	return &streamHandler{emitter: em, log: log}
}

// stream upgrades the connection, replays every buffered event for runID
// so a late-connecting client catches up, then relays every event emitted
// from here on until the client disconnects or the run forgets itself.
func (h *streamHandler) stream(c echo.Context) error {
	runID := c.Param("runId")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "runId", runID, "error", err)
		return nil
	}
	defer conn.Close()

	events, unsubscribe := h.emitter.Subscribe(runID)
	defer unsubscribe()

	var lastReplayedSeq int64
	for _, ev := range h.emitter.Replay(runID) {
		lastReplayedSeq = ev.Seq
		if err := h.writeEvent(conn, ev); err != nil {
			return nil
		}
	}

	// Subscribe happened before Replay, so any event emitted in between is
	// present in both the replayed buffer and the live channel; drop it
	// here rather than deliver it twice.
	for ev := range events {
		if ev.Seq <= lastReplayedSeq {
			continue
		}
		if err := h.writeEvent(conn, ev); err != nil {
			return nil
		}
	}
	return nil
}

func (h *streamHandler) writeEvent(conn *websocket.Conn, ev emitter.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.log.Warn("websocket write failed", "runId", ev.RunID, "error", err)
		return err
	}
	return nil
}
