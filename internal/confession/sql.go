package confession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore keeps confessions in a SQL database. The same store serves
// SQLite and Postgres; only the statements differ.
type SQLStore struct {
	db      *sql.DB
	insert  string
	listAll string
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS confessions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	confession_type TEXT NOT NULL,
	username TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

const postgresSchema = `CREATE TABLE IF NOT EXISTS confessions (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	confession_type TEXT NOT NULL,
	username TEXT NOT NULL,
	created_at BIGINT NOT NULL
);`

const listConfessions = `SELECT id, title, content, confession_type, username, created_at
	FROM confessions ORDER BY created_at DESC, seq DESC`

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file:" + filepath.ToSlash(path) +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return open(ctx, db, sqliteSchema,
		`INSERT INTO confessions (id, title, content, confession_type, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
}

// OpenPostgres connects to the database at url and migrates it.
func OpenPostgres(ctx context.Context, url string) (*SQLStore, error) {
	if url == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres store")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(ctx, db, postgresSchema,
		`INSERT INTO confessions (id, title, content, confession_type, username, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`)
}

func open(ctx context.Context, db *sql.DB, schema, insert string) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate confessions: %w", err)
	}
	return &SQLStore{db: db, insert: insert, listAll: listConfessions}, nil
}

// Create inserts c.
func (s *SQLStore) Create(ctx context.Context, c Confession) (Confession, error) {
	_, err := s.db.ExecContext(ctx, s.insert,
		c.ID.String(), c.Title, c.Content, c.ConfessionType, c.Username, c.CreatedAt.UnixNano())
	if err != nil {
		return Confession{}, fmt.Errorf("insert confession: %w", err)
	}
	return c, nil
}

// List returns every confession, newest first.
func (s *SQLStore) List(ctx context.Context) ([]Confession, error) {
	rows, err := s.db.QueryContext(ctx, s.listAll)
	if err != nil {
		return nil, fmt.Errorf("list confessions: %w", err)
	}
	defer rows.Close()

	out := []Confession{}
	for rows.Next() {
		var (
			c       Confession
			id      string
			created int64
		)
		if err := rows.Scan(&id, &c.Title, &c.Content, &c.ConfessionType, &c.Username, &created); err != nil {
			return nil, fmt.Errorf("scan confession: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan confession id %q: %w", id, err)
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
