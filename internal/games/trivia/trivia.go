// Package trivia is a simultaneous quiz: every round asks one question and
// every player answers once. Faster correct answers score more.
package trivia

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/party-engine/internal/engine"
)

const GameType = "trivia"

const (
	ActionAnswer = "answer"

	basePoints      = 100
	pointsPerSecond = 10
)

type Question struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
	Correct int      `json:"-"`
}

// Data is the persisted per-round state clients see. The correct choice is
// never part of it.
type Data struct {
	Index    int      `json:"index"`
	Prompt   string   `json:"prompt"`
	Choices  []string `json:"choices"`
	Answered []string `json:"answered"`
}

type AnswerPayload struct {
	Choice int `json:"choice"`
}

type Game struct {
	questions []Question
}

func New(questions []Question) *Game {
	if len(questions) == 0 {
		questions = DefaultQuestions()
	}
	return &Game{questions: questions}
}

func (g *Game) Defaults() engine.Settings {
	limit := 20
	return engine.Settings{
		TotalRounds:          min(5, len(g.questions)),
		TurnMode:             engine.TurnSimultaneous,
		TurnTimeLimitSeconds: &limit,
		MinPlayers:           1,
	}
}

func (g *Game) question(round int) (int, Question) {
	idx := (round - 1) % len(g.questions)
	if idx < 0 {
		idx = 0
	}
	return idx, g.questions[idx]
}

func (g *Game) OnRoundStart(v engine.View) (json.RawMessage, error) {
	idx, q := g.question(v.Round())
	return json.Marshal(Data{
		Index:    idx,
		Prompt:   q.Prompt,
		Choices:  q.Choices,
		Answered: []string{},
	})
}

func (g *Game) OnAction(v engine.View, playerID, action string, payload json.RawMessage) (engine.Outcome, error) {
	if action != ActionAnswer {
		return engine.Reject("unknown action %q", action), nil
	}
	var p AnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return engine.Reject("bad answer payload"), nil
	}

	var d Data
	if err := v.DecodeGameData(&d); err != nil {
		return engine.Outcome{}, fmt.Errorf("decode trivia data: %w", err)
	}
	q := g.questions[d.Index%len(g.questions)]
	if p.Choice < 0 || p.Choice >= len(q.Choices) {
		return engine.Reject("choice %d out of range", p.Choice), nil
	}

	d.Answered = append(d.Answered, playerID)
	data, err := json.Marshal(d)
	if err != nil {
		return engine.Outcome{}, err
	}

	out := engine.Accept()
	out.GameData = data
	if p.Choice == q.Correct {
		out.ScoreDeltas = map[string]int{playerID: points(v)}
	}
	return out, nil
}

func points(v engine.View) int {
	left, ok := v.RemainingTime()
	if !ok {
		return basePoints
	}
	return basePoints + pointsPerSecond*int(left.Seconds())
}

func DefaultQuestions() []Question {
	return []Question{
		{Prompt: "Which planet is known as the Red Planet?", Choices: []string{"Venus", "Mars", "Jupiter", "Mercury"}, Correct: 1},
		{Prompt: "How many sides does a hexagon have?", Choices: []string{"5", "6", "7", "8"}, Correct: 1},
		{Prompt: "What is the chemical symbol for gold?", Choices: []string{"Ag", "Gd", "Au", "Go"}, Correct: 2},
		{Prompt: "Which ocean is the largest?", Choices: []string{"Atlantic", "Indian", "Arctic", "Pacific"}, Correct: 3},
		{Prompt: "Who painted the Mona Lisa?", Choices: []string{"Leonardo da Vinci", "Michelangelo", "Raphael", "Donatello"}, Correct: 0},
		{Prompt: "What is the boiling point of water at sea level in Celsius?", Choices: []string{"90", "100", "110", "120"}, Correct: 1},
	}
}
