package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

const pgUniqueViolation = "23505"

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		url        TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		date       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS articles_search_idx ON articles
		USING GIN (to_tsvector('english', title || ' ' || content))`,
}

const (
	findByURLQuery = `SELECT url, title, content, date FROM articles WHERE url = $1`

	insertQuery = `
		INSERT INTO articles (url, title, content, date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING`

	searchQuery = `
		SELECT url, title, content, date
		FROM articles
		WHERE to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(
			setweight(to_tsvector('english', title), 'A') || setweight(to_tsvector('english', content), 'D'),
			plainto_tsquery('english', $1)
		) DESC
		LIMIT $2`
)

// postgresStore keeps articles in a table whose primary key is the URL.
type postgresStore struct {
	pool pgxPool
	log  logger.Logger
}

func openPostgres(ctx context.Context, dsn string, log logger.Logger) (*postgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := newPostgresStore(pool, log)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPostgresStore(pool pgxPool, log logger.Logger) *postgresStore {
	return &postgresStore{pool: pool, log: logger.Ensure(log)}
}

func (p *postgresStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *postgresStore) FindByURL(ctx context.Context, url string) (domain.Article, bool, error) {
	var a domain.Article
	err := p.pool.QueryRow(ctx, findByURLQuery, url).Scan(&a.URL, &a.Title, &a.Content, &a.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("find article: %w", err)
	}
	return a, true, nil
}

func (p *postgresStore) Insert(ctx context.Context, article domain.Article) error {
	tag, err := p.pool.Exec(ctx, insertQuery, article.URL, article.Title, article.Content, article.Date)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *postgresStore) Search(ctx context.Context, keywords string, limit int) ([]domain.Article, error) {
	rows, err := p.pool.Query(ctx, searchQuery, keywords, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	out := []domain.Article{}
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.URL, &a.Title, &a.Content, &a.Date); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}
