package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies the embedded
// migrations. ":memory:" opens a private in-memory database.
func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	} else {
		dsn = "file:" + path + "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// every pooled connection to :memory: would otherwise see its own database
	db.SetMaxOpenConns(1)

	scripts, err := migrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, migration := range scripts {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	INSERT OR REPLACE INTO matches (session_id, mode, map_name, winner, winner_name, ended_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err = tx.ExecContext(ctx, q, result.SessionID, result.Mode, result.MapName, result.Winner, result.WinnerName, result.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE session_id = ?;`, result.SessionID); err != nil {
		return fmt.Errorf("failed to clear match players: %v", err)
	}

	for _, player := range result.Players {
		q := `
		INSERT INTO match_players (session_id, player_id, name, score, kills, deaths, host)
		VALUES (?, ?, ?, ?, ?, ?, ?);
		`
		_, err = tx.ExecContext(ctx, q, result.SessionID, player.PlayerID, player.Name, player.Score, player.Kills, player.Deaths, player.Host)
		if err != nil {
			return fmt.Errorf("failed to insert match player: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) LoadMatchResult(ctx context.Context, sessionID string) (*models.MatchResult, error) {
	q := `
	SELECT session_id, mode, map_name, winner, winner_name, ended_at FROM matches WHERE session_id = ?;
	`
	result := &models.MatchResult{}
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&result.SessionID, &result.Mode, &result.MapName, &result.Winner, &result.WinnerName, &result.EndedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan match: %v", err)
	}

	players, err := r.loadPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result.Players = players
	return result, nil
}

func (r *SQLiteRepository) ListMatchResults(ctx context.Context, limit int) ([]*models.MatchResult, error) {
	q := `
	SELECT session_id, mode, map_name, winner, winner_name, ended_at FROM matches
	ORDER BY ended_at DESC, session_id LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %v", err)
	}

	results := []*models.MatchResult{}
	for rows.Next() {
		result := &models.MatchResult{}
		if err := rows.Scan(&result.SessionID, &result.Mode, &result.MapName, &result.Winner, &result.WinnerName, &result.EndedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan match: %v", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate matches: %v", err)
	}
	// release the single connection before loading players
	rows.Close()

	for _, result := range results {
		players, err := r.loadPlayers(ctx, result.SessionID)
		if err != nil {
			return nil, err
		}
		result.Players = players
	}
	return results, nil
}

func (r *SQLiteRepository) loadPlayers(ctx context.Context, sessionID string) ([]models.PlayerResult, error) {
	q := `
	SELECT player_id, name, score, kills, deaths, host FROM match_players
	WHERE session_id = ? ORDER BY score DESC, player_id;
	`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match players: %v", err)
	}
	defer rows.Close()

	players := []models.PlayerResult{}
	for rows.Next() {
		var p models.PlayerResult
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Score, &p.Kills, &p.Deaths, &p.Host); err != nil {
			return nil, fmt.Errorf("failed to scan match player: %v", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match players: %v", err)
	}
	return players, nil
}
