package types

// PlayerStats is the published scoreboard entry for one player.
type PlayerStats struct {
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	// Ping is the latest one-way latency in milliseconds, or -1 when unknown.
	Ping int64 `json:"ping"`
	Host bool  `json:"host"`
}

// Equal returns true if the stats are equal to the other stats
func (p *PlayerStats) Equal(other *PlayerStats) bool {
	return p.PlayerID == other.PlayerID &&
		p.Name == other.Name &&
		p.Score == other.Score &&
		p.Kills == other.Kills &&
		p.Deaths == other.Deaths &&
		p.Host == other.Host
}

// Reset clears score, kills and deaths.
func (p *PlayerStats) Reset() {
	p.Score = 0
	p.Kills = 0
	p.Deaths = 0
}
