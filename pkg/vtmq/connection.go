package vtmq

import (
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// Dial connects to the Redis backing store and verifies the connection.
func Dial(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("missing Redis address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   10,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, errors.Wrap(err, "unable to reach Redis")
	}
	return client, nil
}

// FromURL connects to the backing store described by a redis:// URL.
func FromURL(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid Redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		return nil, errors.Wrap(err, "unable to reach Redis")
	}
	return client, nil
}
