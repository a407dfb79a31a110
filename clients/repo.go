package clients

import "context"

// Repo is the client store. Clients are read-only to the protocol core.
type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
	Upsert(ctx context.Context, client *Client) error
	Delete(ctx context.Context, clientID string) error
}
