// Package redistest implements support code for testing against a live
// Redis server.
package redistest

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis"
)

// Credentials holds the connection details for the test Redis server.
type Credentials struct {
	Password string
	Addr     string
	DB       int
}

// GetCredentials gets the Redis credentials from environment variables.
func GetCredentials() (c Credentials, ok bool) {
	addr := os.Getenv("REDIS_ADDRESS")
	if len(addr) == 0 {
		return Credentials{}, false
	}
	db := 0
	if d := os.Getenv("REDIS_DB"); len(d) > 0 {
		if parsed, err := strconv.Atoi(d); err == nil {
			db = parsed
		}
	}
	return Credentials{
		Password: os.Getenv("REDIS_PASSWORD"),
		Addr:     addr,
		DB:       db,
	}, true
}

// Connect connects to Redis, skipping the test when no server is configured.
func Connect(t *testing.T) *redis.Client {
	creds, ok := GetCredentials()
	if !ok {
		t.Skip("Missing Redis credentials")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         creds.Addr,
		Password:     creds.Password,
		DB:           creds.DB,
		MaxRetries:   3,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return client
}

var (
	seedOnce sync.Once
	rngMu    sync.Mutex
)

// QueueName returns a queue name unique to this test run, so parallel tests
// sharing one Redis server cannot interfere with each other.
func QueueName(t *testing.T) string {
	seedOnce.Do(func() { rand.Seed(time.Now().UnixNano()) })
	rngMu.Lock()
	n := rand.Int()
	rngMu.Unlock()
	// Subtest names contain slashes, which are not valid in queue names.
	name := strings.Replace(t.Name(), "/", "-", -1)
	return name + "-" + strconv.Itoa(n)
}
