package bootstrap

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Storage is the database handle passed to seeders.
type Storage interface {
	sqlx.ExtContext
}

// Seeder loads reference data into storage. Seeders must be idempotent:
// they run on every start after migrations.
type Seeder interface {
	Name() string
	Seed(ctx context.Context, storage Storage) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context, storage Storage) error
}

// Name returns the seeder label used in logs.
func (f SeederFunc) Name() string { return f.Label }

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, storage Storage) error {
	return f.Fn(ctx, storage)
}
