package models

// MatchResult is the final scoreboard of one hosted session.
type MatchResult struct {
	SessionID  string         `json:"session_id"`
	Mode       string         `json:"mode"`
	MapName    string         `json:"map_name"`
	Winner     int64          `json:"winner"`
	WinnerName string         `json:"winner_name,omitempty"`
	EndedAt    int64          `json:"ended_at"`
	Players    []PlayerResult `json:"players"`
}

type PlayerResult struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Host     bool   `json:"host"`
}
