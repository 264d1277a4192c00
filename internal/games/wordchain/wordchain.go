// Package wordchain is a turn-based word game: each word must start with
// the last letter of the previous one. A player may pass, which sits them
// out for the rest of the round.
package wordchain

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode"

	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/games/answer"
)

const GameType = "wordchain"

const (
	ActionPlay = "play"
	ActionPass = "pass"
)

type Data struct {
	Last string   `json:"last"`
	Used []string `json:"used"`
}

type PlayPayload struct {
	Word string `json:"word"`
}

type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) Defaults() engine.Settings {
	limit := 30
	return engine.Settings{
		TotalRounds:          3,
		TurnMode:             engine.TurnSequential,
		TurnTimeLimitSeconds: &limit,
		MinPlayers:           2,
	}
}

func (g *Game) OnAction(v engine.View, playerID, action string, payload json.RawMessage) (engine.Outcome, error) {
	switch action {
	case ActionPass:
		out := engine.Accept()
		out.ConcludesTurn = true
		out.Eliminations = []engine.Elimination{{PlayerID: playerID}}
		return out, nil
	case ActionPlay:
	default:
		return engine.Reject("unknown action %q", action), nil
	}

	var p PlayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return engine.Reject("bad play payload"), nil
	}
	word := answer.Normalize(p.Word)
	if word == "" {
		return engine.Reject("missing word"), nil
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return engine.Reject("%q is not a single word", p.Word), nil
		}
	}

	var d Data
	if err := v.DecodeGameData(&d); err != nil {
		return engine.Outcome{}, fmt.Errorf("decode wordchain data: %w", err)
	}
	if slices.Contains(d.Used, word) {
		return engine.Reject("%q was already played", word), nil
	}
	if d.Last != "" {
		prev := []rune(d.Last)
		if []rune(word)[0] != prev[len(prev)-1] {
			return engine.Reject("%q must start with %q", word, string(prev[len(prev)-1])), nil
		}
	}

	d.Last = word
	d.Used = append(d.Used, word)
	data, err := json.Marshal(d)
	if err != nil {
		return engine.Outcome{}, err
	}
	out := engine.Accept()
	out.ConcludesTurn = true
	out.ScoreDeltas = map[string]int{playerID: len([]rune(word))}
	out.GameData = data
	return out, nil
}
