package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/hub"
	"github.com/DoyleJ11/party-engine/internal/lobby"
	"github.com/DoyleJ11/party-engine/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// Handler streams a match's committed events to the client and feeds the
// client's actions into the engine. Query: ?match=<id>&player=<id>. A
// missing player id makes the connection a read-only spectator.
func Handler(eng *engine.Engine, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := r.URL.Query().Get("match")
		if matchID == "" {
			http.Error(w, "missing match", http.StatusBadRequest)
			return
		}
		playerID := r.URL.Query().Get("player")

		if _, err := eng.Get(r.Context(), matchID); err != nil {
			if errors.Is(err, engine.ErrMatchNotFound) {
				http.Error(w, "match not found", http.StatusNotFound)
				return
			}
			http.Error(w, "load match", http.StatusInternalServerError)
			return
		}

		lb := h.Lobby(matchID, true)
		if lb == nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := log.With(zap.String("match_id", matchID), zap.String("player_id", playerID), zap.String("client_id", clientID))

		out := make(chan engine.Event, 16)
		lb.Inbox() <- lobby.Join{ClientID: clientID, Outbox: out}
		defer func() {
			select {
			case lb.Inbox() <- lobby.Leave{ClientID: clientID}:
			case <-lb.Done():
			}
		}()

		c := &client{conn: conn, eng: eng, matchID: matchID, playerID: playerID, log: log}
		c.sendState(r.Context())

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for evt := range out {
				c.send(writeCtx, types.ServerMessage{Type: types.MsgEvent, Event: &evt})
			}
			// Lobby dropped us (slow or shutting down); end the session.
			_ = conn.Close(websocket.StatusTryAgainLater, "event stream closed")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.send(r.Context(), types.ServerMessage{Type: types.MsgError, Error: "bad json", Code: "bad_request"})
				continue
			}
			c.handle(r.Context(), cm)
		}
	}
}

type client struct {
	conn     *websocket.Conn
	eng      *engine.Engine
	matchID  string
	playerID string
	log      *zap.Logger
}

func (c *client) handle(ctx context.Context, cm types.ClientMessage) {
	switch cm.Type {
	case "Action":
		c.result(ctx, cm.Action, cm.Payload)
	case "Timeout":
		c.result(ctx, engine.ActionTimeout, cm.Payload)
	case "Sync":
		c.sendState(ctx)
	default:
		c.send(ctx, types.ServerMessage{Type: types.MsgError, Error: "unknown type", Code: "bad_request"})
	}
}

func (c *client) result(ctx context.Context, action string, payload json.RawMessage) {
	res, err := c.eng.ProcessAction(ctx, c.matchID, c.playerID, action, payload)
	if err != nil {
		if !engine.IsRejection(err) {
			c.log.Error("process action", zap.String("action", action), zap.Error(err))
		}
		c.send(ctx, types.ServerMessage{Type: types.MsgError, Error: err.Error(), Code: engine.ErrorCode(err)})
		return
	}
	c.send(ctx, types.ServerMessage{Type: types.MsgResult, Result: &res})
}

func (c *client) sendState(ctx context.Context) {
	st, err := c.eng.Get(ctx, c.matchID)
	if err != nil {
		c.send(ctx, types.ServerMessage{Type: types.MsgError, Error: err.Error(), Code: engine.ErrorCode(err)})
		return
	}
	c.send(ctx, types.ServerMessage{Type: types.MsgState, State: st})
}

func (c *client) send(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("encode server message", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, payload)
}
