package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shopbot-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
)

// Dialect selects SQL syntax differences between backends.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// tokenSkew treats tokens that expire this soon as already expired.
const tokenSkew = 30 * time.Second

// SQLIdentityRepository implements IdentityRepository on SQLite or MySQL.
type SQLIdentityRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *slog.Logger
}

// OpenIdentityDB opens the identity database for the given dialect.
func OpenIdentityDB(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	switch dialect {
	case DialectSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// NewSQLIdentityRepository creates the repository and its table.
func NewSQLIdentityRepository(db *sql.DB, dialect Dialect, logger *slog.Logger) (*SQLIdentityRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	query := `
	CREATE TABLE IF NOT EXISTS identities (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		region VARCHAR(16) NOT NULL,
		puuid VARCHAR(64) NOT NULL,
		access_token TEXT NOT NULL,
		entitlement_token TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create identities table: %w", err)
	}
	return &SQLIdentityRepository{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  logger.With("component", "identity_repository"),
	}, nil
}

// ListIdentities returns identity IDs in registration order.
func (r *SQLIdentityRepository) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetIdentity returns the identity, or nil when it does not exist.
func (r *SQLIdentityRepository) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	query := `
		SELECT id, username, region, puuid, access_token, entitlement_token, created_at, updated_at
		FROM identities WHERE id = ?`

	var (
		identity           model.Identity
		createdAt, updated int64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID,
		&identity.Username,
		&identity.Region,
		&identity.PUUID,
		&identity.AccessToken,
		&identity.EntitlementToken,
		&createdAt,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	identity.CreatedAt = time.UnixMilli(createdAt)
	identity.UpdatedAt = time.UnixMilli(updated)
	return &identity, nil
}

// UpsertIdentity stores the identity, keeping the original registration time.
func (r *SQLIdentityRepository) UpsertIdentity(ctx context.Context, identity *model.Identity) error {
	if identity == nil || strings.TrimSpace(identity.ID) == "" {
		return errors.New("identity ID cannot be empty")
	}
	now := r.now().UnixMilli()

	var query string
	switch r.dialect {
	case DialectMySQL:
		query = `
		INSERT INTO identities (id, username, region, puuid, access_token, entitlement_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			username = VALUES(username),
			region = VALUES(region),
			puuid = VALUES(puuid),
			access_token = VALUES(access_token),
			entitlement_token = VALUES(entitlement_token),
			updated_at = VALUES(updated_at)`
	default:
		query = `
		INSERT INTO identities (id, username, region, puuid, access_token, entitlement_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			region = excluded.region,
			puuid = excluded.puuid,
			access_token = excluded.access_token,
			entitlement_token = excluded.entitlement_token,
			updated_at = excluded.updated_at`
	}

	_, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.Username, identity.Region, identity.PUUID,
		identity.AccessToken, identity.EntitlementToken, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert identity %s: %w", identity.ID, err)
	}
	return nil
}

// DeleteIdentity removes an identity. Deleting a missing identity is not an error.
func (r *SQLIdentityRepository) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", id, err)
	}
	return nil
}

// Authenticate reports whether the identity has every session field and an
// access token that has not expired. Token renewal happens in the login flow,
// outside this service.
func (r *SQLIdentityRepository) Authenticate(ctx context.Context, id string) (bool, error) {
	identity, err := r.GetIdentity(ctx, id)
	if err != nil {
		return false, err
	}
	if !identity.HasSession() {
		return false, nil
	}

	expiry, err := TokenExpiry(identity.AccessToken)
	if err != nil {
		r.logger.Debug("access token not decodable", "identity", id, "error", err)
		return false, nil
	}
	if !expiry.IsZero() && !r.now().Add(tokenSkew).Before(expiry) {
		r.logger.Debug("access token expired", "identity", id, "expired_at", expiry)
		return false, nil
	}
	return true, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// A token without exp yields the zero time.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Close closes the database connection.
func (r *SQLIdentityRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLIdentityRepository implements IdentityRepository
var _ IdentityRepository = (*SQLIdentityRepository)(nil)
