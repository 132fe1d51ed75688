package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionhub/internal/models"
)

// PostgresConfig tunes the pgx connection pool behind the Postgres repository.
type PostgresConfig struct {
	DSN               string
	MaxConnections    int32
	MinConnections    int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AcquireTimeout    time.Duration
	ApplicationName   string
}

// PostgresOption mutates the Postgres repository configuration.
type PostgresOption func(*PostgresConfig)

// WithPostgresPoolLimits bounds the number of pooled connections.
func WithPostgresPoolLimits(maxConns, minConns int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns > 0 {
			cfg.MinConnections = minConns
		}
	}
}

// WithPostgresPoolDurations controls connection lifetime, idle recycling, and
// the interval between pool health checks.
func WithPostgresPoolDurations(maxLifetime, maxIdle, healthCheck time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthCheck > 0 {
			cfg.HealthCheckPeriod = healthCheck
		}
	}
}

// WithPostgresAcquireTimeout bounds how long opening a connection may take.
func WithPostgresAcquireTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	}
}

// WithPostgresApplicationName sets the application_name reported to Postgres.
func WithPostgresApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.ApplicationName = strings.TrimSpace(name)
	}
}

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and bootstraps the
// schema when it is missing.
func NewPostgresRepository(dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := PostgresConfig{DSN: strings.TrimSpace(dsn)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users (id),
			title TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			json_file_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_user_status_idx ON sessions (user_id, status)`,
		`CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions (status)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool, bounded by the provided context.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	normalizedEmail := NormalizeEmail(params.Email)
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(params.Password) < minPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:        generateID(),
		Email:     normalizedEmail,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.pool.Exec(context.Background(), `
INSERT INTO users (id, email, password_hash, created_at)
VALUES ($1, $2, $3, $4)
`, user.ID, user.Email, passwordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailInUse
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	row := r.pool.QueryRow(context.Background(), `
SELECT id, email, password_hash, created_at
FROM users
WHERE email = $1
`, NormalizeEmail(email))
	record, err := scanUserRecord(row)
	if err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(record.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return record.User, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, email, created_at
FROM users
WHERE id = $1
`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByEmail(email string) (models.User, bool) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, email, created_at
FROM users
WHERE email = $1
`, NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) SetUserPassword(id, password string) (models.User, error) {
	if len(password) < minPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	row := r.pool.QueryRow(context.Background(), `
UPDATE users SET password_hash = $1
WHERE id = $2
RETURNING id, email, created_at
`, hashed, id)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, fmt.Errorf("user %s not found", id)
		}
		return models.User{}, fmt.Errorf("update password: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) ListPublishedSessions() ([]PublishedSession, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT s.id, s.user_id, s.title, s.tags, s.json_file_url, s.status, s.created_at, s.updated_at, u.email
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.status = $1
ORDER BY s.created_at DESC, s.id
`, models.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]PublishedSession, 0)
	for rows.Next() {
		var entry PublishedSession
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Tags, &entry.JSONFileURL, &entry.Status, &entry.CreatedAt, &entry.UpdatedAt, &entry.OwnerEmail); err != nil {
			return nil, fmt.Errorf("scan published session: %w", err)
		}
		sessions = append(sessions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list published sessions: %w", err)
	}
	return sessions, nil
}

func (r *postgresRepository) ListUserSessions(userID string) ([]models.Session, error) {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, user_id, title, tags, json_file_url, status, created_at, updated_at
FROM sessions
WHERE user_id = $1
ORDER BY updated_at DESC, id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return sessions, nil
}

func (r *postgresRepository) GetUserSession(userID, sessionID string) (models.Session, error) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, user_id, title, tags, json_file_url, status, created_at, updated_at
FROM sessions
WHERE id = $1 AND user_id = $2
`, sessionID, userID)
	session, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) UpsertSession(userID string, params UpsertSessionParams) (models.Session, error) {
	if err := validateSessionParams(params); err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	tags := append([]string(nil), params.Tags...)
	if tags == nil {
		tags = []string{}
	}

	var row pgx.Row
	if params.ID != "" {
		row = r.pool.QueryRow(context.Background(), `
UPDATE sessions
SET title = $1, tags = $2, json_file_url = $3, status = $4, updated_at = $5
WHERE id = $6 AND user_id = $7
RETURNING id, user_id, title, tags, json_file_url, status, created_at, updated_at
`, params.Title, tags, params.JSONFileURL, params.Status, now, params.ID, userID)
	} else {
		row = r.pool.QueryRow(context.Background(), `
INSERT INTO sessions (id, user_id, title, tags, json_file_url, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, title, tags, json_file_url, status, created_at, updated_at
`, generateID(), userID, params.Title, tags, params.JSONFileURL, params.Status, now, now)
	}

	session, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("upsert session: %w", err)
	}
	return session, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func scanUserRecord(row pgx.Row) (UserRecord, error) {
	var record UserRecord
	if err := row.Scan(&record.ID, &record.Email, &record.PasswordHash, &record.CreatedAt); err != nil {
		return UserRecord{}, err
	}
	return record, nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	if err := row.Scan(&session.ID, &session.UserID, &session.Title, &session.Tags, &session.JSONFileURL, &session.Status, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return models.Session{}, err
	}
	if session.Tags == nil {
		session.Tags = []string{}
	}
	return session, nil
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*postgresRepository)(nil)
