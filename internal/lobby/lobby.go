package lobby

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

type Msg interface{ isLobbyMsg() }

// Deliver carries one committed engine event into the lobby.
type Deliver struct {
	Event engine.Event
}

func (Deliver) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan engine.Event // where this client wants to receive events
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	MatchID    string
	Version    int64
	NumClients int
	Delivered  int
}

// Lobby fans the events of one match out to its connected clients. It owns
// no game state: the engine's store is the source of truth, the lobby only
// relays what was committed.
type Lobby struct {
	matchID   string
	inbox     chan Msg
	version   int64
	delivered int
	clients   map[string]chan engine.Event
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewLobby(parent context.Context, matchID string, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		matchID: matchID,
		inbox:   make(chan Msg, 64), // Small buffer
		clients: make(map[string]chan engine.Event),
		log:     log.With(zap.String("match_id", matchID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Deliver:
				// Events from one commit carry the same version; only
				// strictly older versions are stale.
				if msg.Event.Version < l.version {
					break
				}
				l.version = msg.Event.Version
				l.delivered++
				l.broadcast(msg.Event)

			case GetState:
				msg.Reply <- View{
					MatchID:    l.matchID,
					Version:    l.version,
					NumClients: len(l.clients),
					Delivered:  l.delivered,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more events
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(evt engine.Event) {
	for id, ch := range l.clients {
		select {
		case ch <- evt:
			//ok
		default:
			// Client is slow/full - drop them.
			l.log.Warn("dropping slow client", zap.String("client_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Inbox exposes the lobby's message channel to the hub and the ws layer.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
