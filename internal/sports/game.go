package sports

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinal     Status = "final"
)

type Game struct {
	ID        string    `json:"id"`
	League    string    `json:"league"`
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	StartsAt  time.Time `json:"startsAt"`
	Status    Status    `json:"status"`
	Period    string    `json:"period,omitempty"`
	Clock     string    `json:"clock,omitempty"`
	HomeScore *int      `json:"homeScore,omitempty"`
	AwayScore *int      `json:"awayScore,omitempty"`
}

// Redacted returns a copy without anything that gives the result away.
func (g Game) Redacted() Game {
	g.Period = ""
	g.Clock = ""
	g.HomeScore = nil
	g.AwayScore = nil
	return g
}

func (g Game) Title() string {
	return g.AwayTeam + " @ " + g.HomeTeam
}

func RedactAll(games []Game) []Game {
	out := make([]Game, len(games))
	for i, g := range games {
		out[i] = g.Redacted()
	}
	return out
}
