package cli

import (
	"context"
	"fmt"

	"github.com/xraph/credits/internal/config"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// OpenStore connects to the backend named by c.Driver.
func OpenStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Driver {
	case "memory":
		s = memory.New()
	case "sqlite":
		var db *sqlite.Store
		db, err = sqlite.Open(ctx, c.DSN)
		s = db
	case "postgres":
		var db *postgres.Store
		db, err = postgres.Open(ctx, c.DSN)
		s = db
	case "mongo":
		var db *mongo.Store
		db, err = mongo.Open(ctx, c.DSN, c.Database)
		s = db
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
