package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// handleWebsocket streams live state to the client and accepts control
// commands from it.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := s.hub.Register()
	s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Live client connected")

	state := s.tracker.State()
	s.hub.SendTo(client, Message{Type: TypeState, State: &state})

	done := make(chan struct{})
	go s.writePump(conn, client, done)

	s.readPump(r, conn, client)
	s.hub.Unregister(client)
	<-done
	s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Live client disconnected")
}

func (s *Server) writePump(conn *websocket.Conn, client *Client, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (s *Server) readPump(r *http.Request, conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Live client read error")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.hub.SendTo(client, Message{Type: TypeError, Error: "invalid command"})
			continue
		}
		if err := s.dispatch(r, client, cmd); err != nil {
			s.hub.SendTo(client, Message{Type: TypeError, Error: err.Error()})
		}
	}
}

var errUnknownAction = errors.New("unknown action")

// dispatch runs one command. State changes reach every client through
// the tracker's observer; results go to all clients too.
func (s *Server) dispatch(r *http.Request, client *Client, cmd Command) error {
	ctx := r.Context()
	switch cmd.Action {
	case "start":
		return s.tracker.Start(ctx)
	case "stop":
		res, err := s.tracker.Stop(ctx)
		s.hub.Broadcast(Message{Type: TypeResult, Result: &res})
		return err
	case "reset":
		s.tracker.Reset()
		return nil
	case "calibrate":
		stride, err := s.tracker.Calibrate(ctx, cmd.KnownDistanceMeters)
		if err != nil {
			return err
		}
		s.hub.Broadcast(Message{Type: TypeCalibration, Stride: stride})
		return nil
	case "settings":
		if cmd.Settings == nil {
			return errors.New("settings command without settings")
		}
		_, err := s.tracker.SaveSettings(ctx, *cmd.Settings)
		return err
	case "state":
		state := s.tracker.State()
		s.hub.SendTo(client, Message{Type: TypeState, State: &state})
		return nil
	default:
		return errUnknownAction
	}
}
