package db

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civiclens/civiclens-go/internal/urgency"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("already exists")

// EventChannel is the NOTIFY channel carrying ComplaintEvent payloads.
const EventChannel = "complaint_events"

const defaultListLimit = 50

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool and provides CRUD methods for users, API
// tokens and complaints.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates a new DB instance, connects to PostgreSQL, and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate executes the embedded SQL migration files in name order. Every
// file is idempotent, so all of them run on each start.
func (db *DB) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	for _, name := range files {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	db.logger.Info("database migrated", "files", len(files))
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// PingContext checks the database connection.
func (db *DB) PingContext(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func conflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrConflict
	}
	return err
}

// notify queues a complaint event inside tx; it is delivered on commit.
func notify(ctx context.Context, tx pgx.Tx, event ComplaintEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, EventChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `id, name, email, role, gender, birth_date, address, password_hash, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var email, passwordHash *string
	var address []byte
	if err := row.Scan(&u.ID, &u.Name, &email, &u.Role, &u.Gender, &u.BirthDate, &address, &passwordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	if email != nil {
		u.Email = *email
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if address != nil {
		u.Address = &Address{}
		if err := json.Unmarshal(address, u.Address); err != nil {
			return nil, fmt.Errorf("decode address of %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func marshalAddress(a *Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// CreateUser inserts u, assigning an ID when it has none, and populates
// CreatedAt. It returns ErrConflict when the email is taken.
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Gender == "" {
		u.Gender = GenderOther
	}
	address, err := marshalAddress(u.Address)
	if err != nil {
		return err
	}
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, role, gender, birth_date, address, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		u.ID, u.Name, nullable(u.Email), u.Role, u.Gender, u.BirthDate, address, nullable(u.PasswordHash),
	).Scan(&u.CreatedAt)
	return conflict(err)
}

// GetUserByID retrieves a user by their primary key.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Emails are stored lowercased.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserProfile writes the profile columns set in p and returns the user.
func (db *DB) UpdateUserProfile(ctx context.Context, id uuid.UUID, p ProfilePatch) (*User, error) {
	address, err := marshalAddress(p.Address)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(db.Pool.QueryRow(ctx,
		`UPDATE users SET
		        name = COALESCE($2::text, name),
		        gender = COALESCE($3::text, gender),
		        birth_date = COALESCE($4::date, birth_date),
		        address = COALESCE($5::jsonb, address)
		 WHERE id = $1 RETURNING `+userColumns,
		id, p.Name, p.Gender, p.BirthDate, address))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// API tokens
// ---------------------------------------------------------------------------

// CreateAPIToken stores a token hash and populates CreatedAt.
func (db *DB) CreateAPIToken(ctx context.Context, t *APIToken) error {
	return db.Pool.QueryRow(ctx,
		`INSERT INTO api_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3) RETURNING created_at`,
		t.Hash, t.UserID, t.ExpiresAt).Scan(&t.CreatedAt)
}

// GetUserByTokenHash resolves a token hash to its user. Tokens expired at now
// are treated as missing.
func (db *DB) GetUserByTokenHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id = (SELECT user_id FROM api_tokens WHERE token_hash = $1 AND expires_at > $2)`,
		hash, now))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// DeleteAPIToken revokes a token. It returns ErrNotFound for unknown hashes.
func (db *DB) DeleteAPIToken(ctx context.Context, hash string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM api_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredTokens removes all tokens expired at now.
func (db *DB) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at <= $1`, now)
	return tag.RowsAffected(), err
}

// ---------------------------------------------------------------------------
// Complaints
// ---------------------------------------------------------------------------

const complaintColumns = `id, user_id, text, latitude, longitude, status, analysis, urgency, created_at, updated_at`

func scanComplaint(row pgx.Row) (*Complaint, error) {
	var c Complaint
	var analysis []byte
	var urgency *string
	if err := row.Scan(&c.ID, &c.UserID, &c.Text, &c.Latitude, &c.Longitude, &c.Status, &analysis, &urgency, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if analysis != nil {
		c.Analysis = json.RawMessage(analysis)
	}
	if urgency != nil {
		c.Urgency = *urgency
	}
	return &c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// CreateComplaint inserts c, assigning an ID when it has none, and populates
// the timestamps. A "created" event is emitted on commit.
func (db *DB) CreateComplaint(ctx context.Context, c *Complaint) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO complaints (id, user_id, text, latitude, longitude, status, analysis, urgency)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
			c.ID, c.UserID, c.Text, c.Latitude, c.Longitude, c.Status, nullableJSON(c.Analysis), nullable(c.Urgency),
		).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return err
		}
		return notify(ctx, tx, ComplaintEvent{Type: EventCreated, ID: c.ID, UserID: c.UserID})
	})
}

// GetComplaint retrieves a complaint by ID.
func (db *DB) GetComplaint(ctx context.Context, id uuid.UUID) (*Complaint, error) {
	c, err := scanComplaint(db.Pool.QueryRow(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListComplaints returns complaints ordered by urgency (high, medium, low,
// pending) and then newest first.
func (db *DB) ListComplaints(ctx context.Context, f ComplaintFilter) ([]Complaint, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+complaintColumns+` FROM complaints
		 WHERE $1::uuid IS NULL OR user_id = $1
		 ORDER BY `+urgency.RankSQL("urgency")+`, created_at DESC
		 LIMIT $2 OFFSET $3`,
		f.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	complaints := []Complaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return complaints, nil
}

// ListPendingComplaints returns up to limit complaints without analysis, oldest first.
func (db *DB) ListPendingComplaints(ctx context.Context, limit int) ([]Complaint, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+complaintColumns+` FROM complaints
		 WHERE analysis IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var complaints []Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return complaints, nil
}

// UpdateComplaint writes the columns set in p and returns the resulting row.
// Columns left out of p keep whatever is stored, including changes committed
// after the caller read the row.
func (db *DB) UpdateComplaint(ctx context.Context, id uuid.UUID, p ComplaintPatch) (*Complaint, error) {
	var c *Complaint
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		var err error
		c, err = scanComplaint(tx.QueryRow(ctx,
			`UPDATE complaints SET
			        text = COALESCE($2::text, text),
			        latitude = COALESCE($3::double precision, latitude),
			        longitude = COALESCE($4::double precision, longitude),
			        status = COALESCE($5::text, status),
			        analysis = CASE WHEN $6::boolean THEN $7::jsonb ELSE analysis END,
			        urgency = CASE WHEN $6::boolean THEN $8::text ELSE urgency END,
			        updated_at = NOW()
			 WHERE id = $1 RETURNING `+complaintColumns,
			id, p.Text, p.Latitude, p.Longitude, p.Status, p.SetAnalysis, nullableJSON(p.Analysis), nullable(p.Urgency),
		))
		if err != nil {
			return notFound(err)
		}
		return notify(ctx, tx, ComplaintEvent{Type: EventUpdated, ID: c.ID, UserID: c.UserID})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetComplaintAnalysis stores the analysis of a pending complaint. It returns
// ErrNotFound when the complaint is gone or its text changed since it was read.
func (db *DB) SetComplaintAnalysis(ctx context.Context, id uuid.UUID, text string, analysis json.RawMessage, urgency string) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx,
			`UPDATE complaints SET analysis = $3, urgency = $4, updated_at = NOW()
			 WHERE id = $1 AND text = $2 RETURNING user_id`,
			id, text, nullableJSON(analysis), nullable(urgency),
		).Scan(&userID)
		if err != nil {
			return notFound(err)
		}
		return notify(ctx, tx, ComplaintEvent{Type: EventAnalyzed, ID: id, UserID: userID})
	})
}

// DeleteComplaint removes a complaint.
func (db *DB) DeleteComplaint(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, `DELETE FROM complaints WHERE id = $1 RETURNING user_id`, id).Scan(&userID)
		if err != nil {
			return notFound(err)
		}
		return notify(ctx, tx, ComplaintEvent{Type: EventDeleted, ID: id, UserID: userID})
	})
}
