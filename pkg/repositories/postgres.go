package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
)

// PostgresRepository serializes access to a single pgx connection, which is
// not safe for concurrent use.
type PostgresRepository struct {
	lock sync.Mutex
	conn *pgx.Conn
}

// NewPostgresRepository connects and applies the embedded migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	scripts, err := migrations("postgres")
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	for i, migration := range scripts {
		if _, err := conn.Exec(ctx, migration); err != nil {
			conn.Close(ctx)
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	q := `
	INSERT INTO matches (session_id, mode, map_name, winner, winner_name, ended_at) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (session_id) DO UPDATE SET mode = $2, map_name = $3, winner = $4, winner_name = $5, ended_at = $6;
	`
	_, err = tx.Exec(ctx, q, result.SessionID, result.Mode, result.MapName, result.Winner, result.WinnerName, result.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %v", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM match_players WHERE session_id = $1;`, result.SessionID); err != nil {
		return fmt.Errorf("failed to clear match players: %v", err)
	}

	for _, player := range result.Players {
		q := `
		INSERT INTO match_players (session_id, player_id, name, score, kills, deaths, host)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
		`
		_, err = tx.Exec(ctx, q, result.SessionID, player.PlayerID, player.Name, player.Score, player.Kills, player.Deaths, player.Host)
		if err != nil {
			return fmt.Errorf("failed to insert match player: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *PostgresRepository) LoadMatchResult(ctx context.Context, sessionID string) (*models.MatchResult, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	q := `
	SELECT session_id, mode, map_name, winner, winner_name, ended_at FROM matches WHERE session_id = $1;
	`
	result := &models.MatchResult{}
	err := r.conn.QueryRow(ctx, q, sessionID).Scan(&result.SessionID, &result.Mode, &result.MapName, &result.Winner, &result.WinnerName, &result.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (r *PostgresRepository) ListMatchResults(ctx context.Context, limit int) ([]*models.MatchResult, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	q := `
	SELECT session_id, mode, map_name, winner, winner_name, ended_at FROM matches
	ORDER BY ended_at DESC, session_id LIMIT $1;
	`
	rows, err := r.conn.Query(ctx, q, limit)
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
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %v", err)
	}

	for _, result := range results {
		players, err := r.loadPlayers(ctx, result.SessionID)
		if err != nil {
			return nil, err
		}
		result.Players = players
	}
	return results, nil
}

func (r *PostgresRepository) loadPlayers(ctx context.Context, sessionID string) ([]models.PlayerResult, error) {
	q := `
	SELECT player_id, name, score, kills, deaths, host FROM match_players
	WHERE session_id = $1 ORDER BY score DESC, player_id;
	`
	rows, err := r.conn.Query(ctx, q, sessionID)
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
