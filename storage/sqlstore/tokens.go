package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/pkg/errors"
)

// TokenStore is the token.Repo view of the store. Each granted token is one
// row whose access and refresh hashes are cleared independently; a row is
// deleted once neither half can reach it.
type TokenStore struct {
	db *sql.DB
}

var _ token.Repo = (*TokenStore)(nil)

func (s *Store) Tokens() *TokenStore {
	return &TokenStore{db: s.db}
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func nullableHash(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: hashValue(value), Valid: true}
}

func (s *TokenStore) AddToken(ctx context.Context, t *token.GrantedToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.AddToken] marshal")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO granted_tokens (id, access_hash, refresh_hash, client_id, scope, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		nullableHash(t.AccessToken),
		nullableHash(t.RefreshToken),
		t.ClientID,
		t.Scope,
		t.CreateDateTime.UnixNano(),
		string(data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrAlreadyExists
		}
		return errors.Wrap(err, "[TokenStore.AddToken] insert")
	}
	return nil
}

func (s *TokenStore) GetAccessToken(ctx context.Context, accessToken string) (*token.GrantedToken, error) {
	return s.getBy(ctx, `SELECT data FROM granted_tokens WHERE access_hash = ?`, hashValue(accessToken))
}

func (s *TokenStore) GetRefreshToken(ctx context.Context, refreshToken string) (*token.GrantedToken, error) {
	return s.getBy(ctx, `SELECT data FROM granted_tokens WHERE refresh_hash = ?`, hashValue(refreshToken))
}

func (s *TokenStore) getBy(ctx context.Context, query, hash string) (*token.GrantedToken, error) {
	var data string
	if err := s.db.QueryRowContext(ctx, query, hash).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[TokenStore.getBy] query")
	}
	return decodeToken(data)
}

// GetToken returns the newest token reachable by its access token matching
// scope, client and payloads.
func (s *TokenStore) GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload token.ClaimSet) (*token.GrantedToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM granted_tokens
		WHERE client_id = ? AND scope = ? AND access_hash IS NOT NULL
		ORDER BY created_at DESC`,
		clientID, scope,
	)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenStore.GetToken] query")
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "[TokenStore.GetToken] scan")
		}
		t, err := decodeToken(data)
		if err != nil {
			return nil, err
		}
		if token.MatchesPayload(t.IDTokenPayload, idTokenPayload) && token.MatchesPayload(t.UserInfoPayload, userInfoPayload) {
			return t, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[TokenStore.GetToken] rows")
	}
	return nil, apperrors.ErrNotFound
}

func (s *TokenStore) RemoveAccessToken(ctx context.Context, accessToken string) error {
	return s.clearHalf(ctx, `UPDATE granted_tokens SET access_hash = NULL WHERE access_hash = ?`, hashValue(accessToken))
}

func (s *TokenStore) RemoveRefreshToken(ctx context.Context, refreshToken string) error {
	return s.clearHalf(ctx, `UPDATE granted_tokens SET refresh_hash = NULL WHERE refresh_hash = ?`, hashValue(refreshToken))
}

// clearHalf detaches one half of a token. The UPDATE is the single-use
// decision: a concurrent caller affects no rows and gets ErrNotFound.
func (s *TokenStore) clearHalf(ctx context.Context, query, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.clearHalf] begin")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, query, hash)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.clearHalf] update")
	}
	if err := notFoundIfUnaffected(res, "[TokenStore.clearHalf]"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM granted_tokens WHERE access_hash IS NULL AND refresh_hash IS NULL`); err != nil {
		return errors.Wrap(err, "[TokenStore.clearHalf] compact")
	}
	return errors.Wrap(tx.Commit(), "[TokenStore.clearHalf] commit")
}

func decodeToken(data string) (*token.GrantedToken, error) {
	var t token.GrantedToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, errors.Wrap(err, "unmarshal granted token")
	}
	return &t, nil
}
