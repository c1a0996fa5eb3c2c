package repositories

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"

	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
)

//go:embed migrations
var migrationsFS embed.FS

type Repository interface {
	Close(ctx context.Context) error
	SaveMatchResult(ctx context.Context, result *models.MatchResult) error
	LoadMatchResult(ctx context.Context, sessionID string) (*models.MatchResult, error)
	ListMatchResults(ctx context.Context, limit int) ([]*models.MatchResult, error)
}

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// NewRepository opens the repository named by a database URL:
// sqlite://path, sqlite://:memory:, postgres:// or postgresql://.
func NewRepository(ctx context.Context, databaseURL string) (Repository, error) {
	// sqlite paths such as :memory: are not valid URL hosts
	if path, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		repository, err := NewSQLiteRepository(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite repository: %v", err)
		}
		return repository, nil
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		repository, err := NewPostgresRepository(ctx, u.String())
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres repository: %v", err)
		}
		return repository, nil
	default:
		return nil, fmt.Errorf("unknown database type %s", u.Scheme)
	}
}

// migrations returns the embedded migration scripts for a dialect in file name order.
func migrations(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", entry.Name(), err)
		}
		scripts = append(scripts, string(b))
	}
	return scripts, nil
}
