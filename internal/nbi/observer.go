package nbi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Observer commands.
const (
	CommandStart       = "start"
	CommandReset       = "reset"
	CommandStop        = "stop"
	CommandRemoveAreas = "remove-areas"
)

// commandMessage is a client-to-server message on the observer stream.
// Period is optional and accepts the same forms as the HTTP commands.
type commandMessage struct {
	Event  string `json:"event"`
	Period string `json:"period,omitempty"`
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// handleObserver upgrades the request to a websocket, sends the current
// areas, then relays broadcasts out and commands in until either side
// closes.
func (s *Server) handleObserver(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.FromContextOr(c.Request.Context(), s.log).Warn(c.Request.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	id := logging.NewID()
	log := s.log.With(logging.String("observer_id", id))

	initial, err := encodeEnvelope(EventAreas, nonNilPolygons(s.sim.OnObserverConnect()))
	if err != nil {
		log.Error(context.Background(), "encode initial areas", logging.Err(err))
		conn.Close()
		return
	}
	o, ok := s.hub.register(id, initial)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go writePump(conn, o, log)
	s.readPump(conn, o, log)
}

// writePump drains the observer queue to the connection. It owns all
// writes on conn and exits when the queue is closed.
func writePump(conn *websocket.Conn, o *observer, log logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-o.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug(context.Background(), "observer write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles commands until the connection fails, then unregisters
// the observer.
func (s *Server) readPump(conn *websocket.Conn, o *observer, log logging.Logger) {
	defer s.hub.unregister(o.id)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug(context.Background(), "observer read failed", logging.Err(err))
			}
			return
		}

		ctx, reqLog := logging.WithRequestLogger(context.Background(), log)
		ctx = logging.ContextWithLogger(ctx, reqLog)

		var msg commandMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			reqLog.Info(ctx, "ignoring malformed observer message", logging.Err(err))
			continue
		}
		if err := s.dispatch(ctx, msg.Event, msg.Period); err != nil {
			reqLog.Info(ctx, "observer command rejected", logging.String("command", msg.Event), logging.Err(err))
			if reply, encErr := encodeEnvelope(EventError, errorResponse{Error: err.Error()}); encErr == nil {
				s.hub.publishTo(o.id, reply)
			}
		}
	}
}

// dispatch runs one named command. It is shared by the websocket stream
// and the HTTP command routes.
func (s *Server) dispatch(ctx context.Context, command, rawPeriod string) error {
	switch strings.TrimSpace(command) {
	case CommandStart:
		period, err := parsePeriod(rawPeriod, s.period)
		if err != nil {
			return err
		}
		return s.sim.Start(ctx, period)
	case CommandReset:
		period, err := parsePeriod(rawPeriod, s.period)
		if err != nil {
			return err
		}
		return s.sim.Reset(ctx, period)
	case CommandStop:
		s.sim.Stop(ctx)
		return nil
	case CommandRemoveAreas:
		s.sim.ClearAreas(ctx)
		s.hub.BroadcastAreas(ctx, s.sim.Polygons())
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}
