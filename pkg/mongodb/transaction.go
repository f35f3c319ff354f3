package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs a unit of work atomically
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type sessionTransactor struct {
	client *mongo.Client
}

// NewTransactor returns a Transactor that opens a fresh session per call
func NewTransactor(client *mongo.Client) Transactor {
	return sessionTransactor{client: client}
}

func (t sessionTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// Transactor returns a Transactor bound to this client
func (c *Client) Transactor() Transactor {
	return NewTransactor(c.client)
}
