package pipeline

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/zhalloran/go-scrape-tenders/models"
)

// PostgresWriter mirrors the sink into a relational table for the desktop
// app's table view. Link carries a unique constraint, so re-running the
// pipeline against the same database does not duplicate rows.
type PostgresWriter struct {
	db *sql.DB
}

var _ OutputWriter = (*PostgresWriter)(nil)

// NewPostgresWriter connects to dsn and ensures the tenders table exists.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return pw, nil
}

func (pw *PostgresWriter) ensureSchema() error {
	_, err := pw.db.Exec(`
        CREATE TABLE IF NOT EXISTS tenders (
            id BIGINT PRIMARY KEY,
            title TEXT NOT NULL,
            link TEXT UNIQUE,
            category TEXT,
            date_posted TEXT,
            closing_date TEXT,
            organization TEXT,
            full_description TEXT,
            status TEXT DEFAULT 'New'
        )`)
	if err != nil {
		return fmt.Errorf("create tenders table: %w", err)
	}
	return nil
}

// Write upserts tenders keyed by link.
func (pw *PostgresWriter) Write(tenders []*models.Tender) error {
	for _, tender := range tenders {
		_, err := pw.db.Exec(`
            INSERT INTO tenders (id, title, link, category, date_posted, closing_date, organization, full_description)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (link) DO UPDATE
            SET title = EXCLUDED.title,
                category = EXCLUDED.category,
                date_posted = EXCLUDED.date_posted,
                closing_date = EXCLUDED.closing_date,
                organization = EXCLUDED.organization,
                full_description = EXCLUDED.full_description`,
			tender.ID,
			tender.Title,
			tender.Link,
			tender.Category,
			tender.DatePosted,
			tender.ClosingDate,
			tender.Organization,
			tender.FullDescription,
		)
		if err != nil {
			return fmt.Errorf("upsert tender %d: %w", tender.ID, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// Validate pings the database.
func (pw *PostgresWriter) Validate() error {
	if err := pw.db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
