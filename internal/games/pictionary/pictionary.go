// Package pictionary is a drawing game. Each turn one player draws and the
// rest guess; the drawer role rotates every turn and every turn is a round.
package pictionary

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/games/answer"
)

const GameType = "pictionary"

const (
	RoleDrawer  = "drawer"
	RoleGuesser = "guesser"

	ActionConfirm = "confirm"
	ActionGuess   = "guess"

	GuesserPoints = 50
	DrawerPoints  = 25
)

// Data is the round state. Only a keyed digest of the word is stored so the
// snapshot can be shown to guessers.
type Data struct {
	Drawer    string   `json:"drawer"`
	WordHash  string   `json:"wordHash,omitempty"`
	WordLen   int      `json:"wordLen,omitempty"`
	Confirmed bool     `json:"confirmed"`
	Solved    []string `json:"solved"`
}

type WordPayload struct {
	Word string `json:"word"`
}

type Game struct {
	secret []byte
}

// New returns the game with words digested under secret. An empty secret
// draws a random one, which only verifies guesses within this process.
func New(secret []byte) *Game {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
	}
	return &Game{secret: slices.Clone(secret)}
}

func (g *Game) Defaults() engine.Settings {
	limit := 60
	return engine.Settings{
		TotalRounds:                 3,
		TurnMode:                    engine.TurnSimultaneous,
		RoundPerTurn:                true,
		TurnTimeLimitSeconds:        &limit,
		Roles:                       []string{RoleDrawer, RoleGuesser},
		AllowMultiplePlayersPerRole: true,
		MinPlayers:                  2,
	}
}

func (g *Game) OnRoundStart(v engine.View) (json.RawMessage, error) {
	d := Data{Solved: []string{}}
	for _, id := range v.State.Turn.TurnOrder {
		if v.RoleOf(id) == RoleDrawer {
			d.Drawer = id
			break
		}
	}
	return json.Marshal(d)
}

func (g *Game) OnAction(v engine.View, playerID, action string, payload json.RawMessage) (engine.Outcome, error) {
	var p WordPayload
	if err := json.Unmarshal(payload, &p); err != nil || answer.Normalize(p.Word) == "" {
		return engine.Reject("missing word"), nil
	}
	var d Data
	if err := v.DecodeGameData(&d); err != nil {
		return engine.Outcome{}, fmt.Errorf("decode pictionary data: %w", err)
	}

	switch action {
	case ActionConfirm:
		if v.RoleOf(playerID) != RoleDrawer {
			return engine.Reject("only the drawer confirms the word"), nil
		}
		word := answer.Normalize(p.Word)
		d.WordHash = g.digest(v, word)
		d.WordLen = len([]rune(word))
		d.Confirmed = true
		return withData(engine.Accept(), d)

	case ActionGuess:
		if v.RoleOf(playerID) != RoleGuesser {
			return engine.Reject("the drawer cannot guess"), nil
		}
		if !d.Confirmed {
			return engine.Reject("the drawer has not confirmed a word yet"), nil
		}
		out := engine.Accept()
		guess := g.digest(v, answer.Normalize(p.Word))
		if hmac.Equal([]byte(guess), []byte(d.WordHash)) && !slices.Contains(d.Solved, playerID) {
			d.Solved = append(d.Solved, playerID)
			out.ScoreDeltas = map[string]int{playerID: GuesserPoints}
			if d.Drawer != "" {
				out.ScoreDeltas[d.Drawer] = DrawerPoints
			}
		}
		return withData(out, d)

	default:
		return engine.Reject("unknown action %q", action), nil
	}
}

func withData(out engine.Outcome, d Data) (engine.Outcome, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return engine.Outcome{}, err
	}
	out.GameData = data
	return out, nil
}

// digest binds the word to its match and round.
func (g *Game) digest(v engine.View, word string) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s:%d:%s", v.State.ID, v.Round(), word)
	return hex.EncodeToString(mac.Sum(nil))
}
