package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

type EnsureLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

type RemoveLobby struct {
	MatchID string
}

// Dispatch routes a committed event to the lobby of its match, if any.
type Dispatch struct {
	Event engine.Event
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (Dispatch) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the lobby of every match with connected clients in this
// process. It is also the engine's in-process event sink.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 256),
		lobbies: make(map[string]*lobby.Lobby),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Publish hands the event to the hub without waiting. A full inbox drops
// the event; clients resync from the match snapshot.
func (h *Hub) Publish(_ context.Context, evt engine.Event) {
	select {
	case h.inbox <- Dispatch{Event: evt}:
	default:
		h.log.Warn("hub inbox full, event dropped",
			zap.String("match_id", evt.MatchID),
			zap.String("type", string(evt.Type)),
		)
	}
}

// Lobby returns the match's lobby, creating it when create is set.
func (h *Hub) Lobby(matchID string, create bool) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	if create {
		h.inbox <- EnsureLobby{MatchID: matchID, Reply: reply}
	} else {
		h.inbox <- GetLobby{MatchID: matchID, Reply: reply}
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.MatchID] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.MatchID]; lb != nil {
					msg.Reply <- lb
					break
				}

				lb := lobby.NewLobby(h.ctx, msg.MatchID, h.log)
				h.lobbies[msg.MatchID] = lb
				msg.Reply <- lb

			case Dispatch:
				lb := h.lobbies[msg.Event.MatchID]
				if lb == nil {
					break
				}
				select {
				case lb.Inbox() <- lobby.Deliver{Event: msg.Event}:
				default:
					h.log.Warn("lobby inbox full, event dropped", zap.String("match_id", msg.Event.MatchID))
				}

			case RemoveLobby:
				if lb := h.lobbies[msg.MatchID]; lb != nil {
					lb.Inbox() <- lobby.Shutdown{}
					delete(h.lobbies, msg.MatchID)
				}

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Inbox() <- lobby.Shutdown{}
				}
				clear(h.lobbies)
				h.cancel()
			}

		}
	}
}
