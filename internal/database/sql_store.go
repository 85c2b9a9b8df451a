package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/store"
)

// Dialect selects the SQL flavour of SQLStore.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLConfig configures OpenSQL.
type SQLConfig struct {
	Dialect      Dialect
	DSN          string
	MaxOpenConns int
}

// SQLStore serves every store contract from a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *logger.Logger
}

var _ store.Backend = (*SQLStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id          TEXT PRIMARY KEY,
		prompt      TEXT NOT NULL,
		type        TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		options     TEXT NOT NULL DEFAULT '[]',
		min_value   INTEGER,
		max_value   INTEGER,
		order_index INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_owners (
		owner_id   TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_answers (
		owner_id    TEXT NOT NULL,
		question_id TEXT NOT NULL,
		value       TEXT NOT NULL,
		PRIMARY KEY (owner_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		brand       TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		attributes  TEXT NOT NULL DEFAULT '{}',
		active      BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS recommendations (
		owner_id      TEXT NOT NULL,
		product_id    TEXT NOT NULL,
		score         DOUBLE PRECISION NOT NULL,
		reason        TEXT NOT NULL,
		rank_position INTEGER NOT NULL,
		refresh_id    TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (owner_id, rank_position)
	)`,
}

// OpenSQL opens the database, verifies it and applies the schema.
func OpenSQL(ctx context.Context, cfg SQLConfig, log *logger.Logger) (*SQLStore, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var driver string
	switch cfg.Dialect {
	case DialectPostgres:
		driver = "pgx"
	case DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}
	if cfg.Dialect == DialectSQLite {
		// one writer, and ":memory:" is per connection
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLStore{db: db, dialect: cfg.Dialect, log: log}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("connected to SQL store", "dialect", cfg.Dialect)
	return s, nil
}

// Migrate creates the tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.mapError("migrate", err)
		}
	}
	return nil
}

func (s *SQLStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.mapError("health", err)
	}
	return nil
}

func (s *SQLStore) Close(context.Context) error { return s.db.Close() }

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) FetchAnswers(ctx context.Context, ownerID string) ([]models.Answer, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM quiz_owners WHERE owner_id = ?`), ownerID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, s.mapError("fetch answers", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT question_id, value FROM quiz_answers WHERE owner_id = ? ORDER BY question_id`), ownerID)
	if err != nil {
		return nil, s.mapError("fetch answers", err)
	}
	defer rows.Close()

	answers := []models.Answer{}
	for rows.Next() {
		var a models.Answer
		var value string
		if err := rows.Scan(&a.QuestionID, &value); err != nil {
			return nil, s.mapError("fetch answers", err)
		}
		a.Value = json.RawMessage(value)
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("fetch answers", err)
	}
	return answers, nil
}

func (s *SQLStore) ReplaceAnswers(ctx context.Context, ownerID string, answers []models.Answer) error {
	return s.inTx(ctx, "replace answers", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO quiz_owners (owner_id, updated_at) VALUES (?, ?)
			ON CONFLICT (owner_id) DO UPDATE SET updated_at = excluded.updated_at`),
			ownerID, formatTime(time.Now())); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM quiz_answers WHERE owner_id = ?`), ownerID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, s.rebind(
			`INSERT INTO quiz_answers (owner_id, question_id, value) VALUES (?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range answers {
			value := string(a.Value)
			if value == "" {
				value = "null"
			}
			if _, err := stmt.ExecContext(ctx, ownerID, a.QuestionID, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, type, category, options, min_value, max_value, order_index
		FROM quiz_questions
		ORDER BY order_index, id`)
	if err != nil {
		return nil, s.mapError("fetch questions", err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		var (
			q              models.Question
			qType, options string
			minV, maxV     sql.NullInt64
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &qType, &q.Category, &options, &minV, &maxV, &q.OrderIndex); err != nil {
			return nil, s.mapError("fetch questions", err)
		}
		q.Type = models.QuestionType(qType)
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, store.Unavailable("fetch questions", fmt.Errorf("question %s: decode options: %w", q.ID, err))
		}
		q.Min = nullIntPtr(minV)
		q.Max = nullIntPtr(maxV)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("fetch questions", err)
	}
	return questions, nil
}

func (s *SQLStore) FetchActiveCatalog(ctx context.Context) ([]models.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, brand, price_cents, tags, attributes
		FROM products
		WHERE active = TRUE
		ORDER BY id`)
	if err != nil {
		return nil, s.mapError("fetch catalog", err)
	}
	defer rows.Close()

	items := []models.CatalogItem{}
	for rows.Next() {
		var (
			item       models.CatalogItem
			price      int64
			tags, attr string
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Brand, &price, &tags, &attr); err != nil {
			return nil, s.mapError("fetch catalog", err)
		}
		item.Price = models.Money(price)
		item.Active = true
		if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
			return nil, store.Unavailable("fetch catalog", fmt.Errorf("product %s: decode tags: %w", item.ID, err))
		}
		if err := json.Unmarshal([]byte(attr), &item.Attributes); err != nil {
			return nil, store.Unavailable("fetch catalog", fmt.Errorf("product %s: decode attributes: %w", item.ID, err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("fetch catalog", err)
	}
	return items, nil
}

func (s *SQLStore) DeleteForOwner(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM recommendations WHERE owner_id = ?`), ownerID)
	return s.mapError("delete recommendations", err)
}

func (s *SQLStore) Insert(ctx context.Context, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return s.inTx(ctx, "insert recommendations", func(tx *sql.Tx) error {
		// rows for products missing from the catalog insert nothing
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO recommendations
				(owner_id, product_id, score, reason, rank_position, refresh_id, created_at)
			SELECT CAST(? AS TEXT), id, CAST(? AS DOUBLE PRECISION), CAST(? AS TEXT),
			       CAST(? AS INTEGER), CAST(? AS TEXT), CAST(? AS TEXT)
			FROM products WHERE id = ?`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		written := 0
		for _, r := range recs {
			res, err := stmt.ExecContext(ctx,
				r.OwnerID, r.Score, r.Reason, r.Position, r.RefreshID, formatTime(r.CreatedAt), r.ProductID,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(n)
		}
		return checkWritten(written, len(recs))
	})
}

func (s *SQLStore) FetchRanked(ctx context.Context, ownerID string) ([]models.RankedRecommendation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT r.product_id, r.score, r.reason, r.rank_position, r.refresh_id, r.created_at,
		       p.title, p.brand, p.price_cents, p.tags
		FROM recommendations r
		JOIN products p ON p.id = r.product_id
		WHERE r.owner_id = ?
		ORDER BY r.rank_position`), ownerID)
	if err != nil {
		return nil, s.mapError("fetch recommendations", err)
	}
	defer rows.Close()

	recs := []models.RankedRecommendation{}
	for rows.Next() {
		var (
			rec       models.RankedRecommendation
			createdAt string
			price     int64
			tags      string
		)
		if err := rows.Scan(
			&rec.ProductID, &rec.Score, &rec.Reason, &rec.Position, &rec.RefreshID, &createdAt,
			&rec.Title, &rec.Brand, &price, &tags,
		); err != nil {
			return nil, s.mapError("fetch recommendations", err)
		}
		rec.OwnerID = ownerID
		rec.Price = models.Money(price)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, store.Unavailable("fetch recommendations", fmt.Errorf("product %s: decode tags: %w", rec.ProductID, err))
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("fetch recommendations", err)
	}
	return recs, nil
}

// Seed upserts products and questions.
func (s *SQLStore) Seed(ctx context.Context, seed *Seed) error {
	return s.inTx(ctx, "seed", func(tx *sql.Tx) error {
		for _, item := range seed.Products {
			tags, err := json.Marshal(nonNil(item.Tags))
			if err != nil {
				return err
			}
			attrs, err := json.Marshal(item.Attributes)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.rebind(`
				INSERT INTO products (id, title, brand, price_cents, tags, attributes, active)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					title = excluded.title,
					brand = excluded.brand,
					price_cents = excluded.price_cents,
					tags = excluded.tags,
					attributes = excluded.attributes,
					active = excluded.active`),
				item.ID, item.Title, item.Brand, int64(item.Price), string(tags), string(attrs), item.Active,
			); err != nil {
				return fmt.Errorf("product %s: %w", item.ID, err)
			}
		}

		for _, q := range seed.Questions {
			options, err := json.Marshal(nonNil(q.Options))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.rebind(`
				INSERT INTO quiz_questions (id, prompt, type, category, options, min_value, max_value, order_index)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					prompt = excluded.prompt,
					type = excluded.type,
					category = excluded.category,
					options = excluded.options,
					min_value = excluded.min_value,
					max_value = excluded.max_value,
					order_index = excluded.order_index`),
				q.ID, q.Prompt, string(q.Type), q.Category, string(options), intPtrArg(q.Min), intPtrArg(q.Max), q.OrderIndex,
			); err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
		}
		s.log.Info("seeded SQL store", "products", len(seed.Products), "questions", len(seed.Questions))
		return nil
	})
}

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.mapError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return s.mapError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.mapError(op, err)
	}
	return nil
}

// mapError translates driver errors into the store error taxonomy.
func (s *SQLStore) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42501" {
		return fmt.Errorf("%s: %w: %w", op, store.ErrAccessDenied, err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%s: %w: %w", op, store.ErrAccessDenied, err)
		}
	}
	return store.Unavailable(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intPtrArg(p *int) interface{} {
	if p == nil {
		return nil
	}
	return int64(*p)
}
