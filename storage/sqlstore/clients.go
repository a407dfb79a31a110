package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jrsteele09/go-uma-server/clients"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/pkg/errors"
)

// ClientStore is the clients.Repo view of the store.
type ClientStore struct {
	db *sql.DB
}

var _ clients.Repo = (*ClientStore)(nil)

func (s *Store) Clients() *ClientStore {
	return &ClientStore{db: s.db}
}

func (s *ClientStore) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM clients WHERE id = ?`, clientID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[ClientStore.Get] query")
	}

	var client clients.Client
	if err := json.Unmarshal([]byte(data), &client); err != nil {
		return nil, errors.Wrap(err, "[ClientStore.Get] unmarshal")
	}
	return &client, nil
}

// Upsert replaces the stored client in one transaction.
func (s *ClientStore) Upsert(ctx context.Context, client *clients.Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] marshal")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] begin")
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, client.ID); err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] delete")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO clients (id, data) VALUES (?, ?)`, client.ID, string(data)); err != nil {
		return errors.Wrap(err, "[ClientStore.Upsert] insert")
	}
	return errors.Wrap(tx.Commit(), "[ClientStore.Upsert] commit")
}

func (s *ClientStore) Delete(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, clientID)
	if err != nil {
		return errors.Wrap(err, "[ClientStore.Delete] exec")
	}
	return notFoundIfUnaffected(res, "[ClientStore.Delete]")
}

func notFoundIfUnaffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg+" rows affected")
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
