package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"rental-scraper/models"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrNotFound is returned by Get for an unknown identity.
var ErrNotFound = errors.New("listing not found")

// listingColumns is the persisted column order, excluding id.
var listingColumns = []string{
	"source", "url", "title", "price", "currency", "surface", "rooms",
	"address", "city", "district", "postal_code", "property_type", "category", "description",
	"deposit", "furnished", "energy_label", "available_from",
	"latitude", "longitude",
	"cycling_minutes", "cycling_km", "driving_minutes", "driving_km",
	"transit_minutes", "transit_transfers", "transit_estimated", "straight_line_km", "cycling_route",
	"nb_name", "nb_safety", "nb_green", "nb_amenities", "nb_dining", "nb_family", "nb_expat", "nb_overall",
	"first_seen", "last_seen",
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS listings (
	id                {{id}},
	source            TEXT NOT NULL,
	url               TEXT NOT NULL,
	title             TEXT,
	price             {{float}},
	currency          TEXT,
	surface           {{float}},
	rooms             INTEGER,
	address           TEXT,
	city              TEXT,
	district          TEXT,
	postal_code       TEXT,
	property_type     TEXT,
	category          TEXT,
	description       TEXT,
	deposit           {{float}},
	furnished         INTEGER,
	energy_label      TEXT,
	available_from    TEXT,
	latitude          {{float}},
	longitude         {{float}},
	cycling_minutes   {{float}},
	cycling_km        {{float}},
	driving_minutes   {{float}},
	driving_km        {{float}},
	transit_minutes   {{float}},
	transit_transfers INTEGER,
	transit_estimated INTEGER,
	straight_line_km  {{float}},
	cycling_route     TEXT,
	nb_name           TEXT,
	nb_safety         INTEGER,
	nb_green          INTEGER,
	nb_amenities      INTEGER,
	nb_dining         INTEGER,
	nb_family         INTEGER,
	nb_expat          INTEGER,
	nb_overall        {{float}},
	first_seen        {{ts}} NOT NULL,
	last_seen         {{ts}} NOT NULL,
	UNIQUE (source, url)
);

CREATE INDEX IF NOT EXISTS idx_listings_price   ON listings(price);
CREATE INDEX IF NOT EXISTS idx_listings_source  ON listings(source);
CREATE INDEX IF NOT EXISTS idx_listings_overall ON listings(nb_overall);
`

// SQLStore persists listings in SQLite or PostgreSQL through database/sql.
// Both dialects share one upsert statement; the identity index is enforced
// by the UNIQUE (source, url) constraint.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	// SQLite allows a single writer; serialize upserts in-process.
	writeMu sync.Mutex

	clockMu   sync.Mutex
	lastStamp int64
	now       func() time.Time

	upsertSQL string
}

// OpenSQLite opens (or creates) a file-backed store for one dataset.
func OpenSQLite(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return newSQLStore(db, DialectSQLite)
}

// OpenPostgres connects to PostgreSQL, retrying the initial ping while the
// server comes up, and runs the schema migration.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}
	return newSQLStore(db, DialectPostgres)
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", dialect, err)
	}
	s.upsertSQL = s.rebind(buildUpsertSQL())
	return s, nil
}

func (s *SQLStore) migrate() error {
	r := strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{float}}", "REAL",
		"{{ts}}", "INTEGER",
	)
	if s.dialect == DialectPostgres {
		r = strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{float}}", "DOUBLE PRECISION",
			"{{ts}}", "BIGINT",
		)
	}
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Transit columns merge as one group so minutes, transfers and the estimate
// flag always describe the same trip. A heuristic estimate never replaces a
// routed trip.
const transitFromIncoming = `excluded.transit_minutes IS NOT NULL AND NOT (
		excluded.transit_estimated = 1 AND listings.transit_minutes IS NOT NULL AND listings.transit_estimated = 0)`

func buildUpsertSQL() string {
	placeholders := make([]string, len(listingColumns))
	var sets []string
	for i, c := range listingColumns {
		placeholders[i] = "?"
		switch c {
		case "source", "url", "first_seen":
		case "last_seen":
			sets = append(sets, "last_seen = excluded.last_seen")
		case "transit_minutes", "transit_transfers", "transit_estimated":
			sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s THEN excluded.%s ELSE listings.%s END", c, transitFromIncoming, c, c))
		default:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(excluded.%s, listings.%s)", c, c, c))
		}
	}
	return fmt.Sprintf(`INSERT INTO listings (%s) VALUES (%s)
ON CONFLICT (source, url) DO UPDATE SET %s
RETURNING id, first_seen`,
		strings.Join(listingColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ",\n\t"))
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
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

// Upsert inserts or merges l. Incoming nulls never overwrite stored values.
// On return l.ID, l.FirstSeen and l.LastSeen reflect the stored row.
func (s *SQLStore) Upsert(ctx context.Context, l *models.Listing) (UpsertResult, error) {
	if l.Source == "" || l.URL == "" {
		return UpsertResult{}, fmt.Errorf("%s: upsert: identity requires source and url", s.dialect)
	}

	if s.dialect == DialectSQLite {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	seen := s.stamp()

	var id, firstSeen int64
	err := s.db.QueryRowContext(ctx, s.upsertSQL, listingArgs(l, seen)...).Scan(&id, &firstSeen)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("%s: upsert %s: %w", s.dialect, l.URL, err)
	}

	l.ID = id
	l.FirstSeen = time.Unix(0, firstSeen).UTC()
	l.LastSeen = time.Unix(0, seen).UTC()
	return UpsertResult{ID: id, Inserted: firstSeen == seen}, nil
}

// stamp returns a strictly increasing unix-nano timestamp.
func (s *SQLStore) stamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := s.now().UnixNano()
	if t <= s.lastStamp {
		t = s.lastStamp + 1
	}
	s.lastStamp = t
	return t
}

// Query streams matching listings ordered by insertion.
func (s *SQLStore) Query(ctx context.Context, f models.Filter) iter.Seq2[*models.Listing, error] {
	return func(yield func(*models.Listing, error) bool) {
		if err := f.Validate(); err != nil {
			yield(nil, err)
			return
		}
		q, args := s.buildQuery(f)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			yield(nil, fmt.Errorf("%s: query: %w", s.dialect, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			l, err := scanListing(rows)
			if err != nil {
				yield(nil, fmt.Errorf("%s: scan row: %w", s.dialect, err))
				return
			}
			if !yield(l, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("%s: query: %w", s.dialect, err))
		}
	}
}

func (s *SQLStore) buildQuery(f models.Filter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.PriceMin != nil {
		add("price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price <= ?", *f.PriceMax)
	}
	if f.SurfaceMin != nil {
		add("surface >= ?", *f.SurfaceMin)
	}
	if f.RoomsMin != nil {
		add("rooms >= ?", *f.RoomsMin)
	}
	if f.Source != "" {
		add("source = ?", strings.ToLower(f.Source))
	}
	if f.ScoreMin != nil {
		add("nb_overall >= ?", *f.ScoreMin)
	}
	if f.ApartmentsOnly {
		add("category = ?", string(models.CategoryApartment))
	}

	q := "SELECT id, " + strings.Join(listingColumns, ", ") + " FROM listings"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(f.Limit)
	}
	return s.rebind(q), args
}

// Get returns the record with the given identity.
func (s *SQLStore) Get(ctx context.Context, source, url string) (*models.Listing, error) {
	q := s.rebind("SELECT id, " + strings.Join(listingColumns, ", ") +
		" FROM listings WHERE source = ? AND url = ?")
	l, err := scanListing(s.db.QueryRowContext(ctx, q, source, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get: %w", s.dialect, err)
	}
	return l, nil
}

// Stats returns aggregate counts per source and overall.
func (s *SQLStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	st := &models.StoreStats{BySource: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM listings GROUP BY source ORDER BY source")
	if err != nil {
		return nil, fmt.Errorf("%s: stats: %w", s.dialect, err)
	}
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: stats: %w", s.dialect, err)
		}
		st.BySource[src] = n
		st.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: stats: %w", s.dialect, err)
	}

	var oldest, newest sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN latitude IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN nb_overall IS NOT NULL THEN 1 ELSE 0 END), 0),
		MIN(first_seen), MAX(last_seen)
		FROM listings`).Scan(&st.Geocoded, &st.WithScore, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("%s: stats: %w", s.dialect, err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64).UTC()
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64).UTC()
	}
	return st, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
