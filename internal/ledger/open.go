package ledger

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Namespace separates validators sharing one redis server.
	Namespace string
}

// Open returns the store selected by opts.Backend: bolt (default), redis or memory.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "bolt":
		return NewBoltStore(opts.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisStore(client, opts.Namespace), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}
