// Package rediscache backs a namespace's second-tier cache with Redis so the
// shared tier can span processes. Values are gob payloads; the flush interval
// maps to key TTL.
package rediscache

import (
	"bytes"
	"context"
	"encoding/gob"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/myfstd/gbatis/cache"
)

// Options configures the Redis backend for one namespace.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds entry lifetime; zero keeps entries until flush.
	TTL time.Duration
	// Timeout bounds each Redis round trip.
	Timeout time.Duration
}

// Cache implements cache.Cache over a Redis client. It satisfies the same
// capability set as the in-process storage layer and slots in below the usual
// decorators via Builder.Base.
type Cache struct {
	id     string
	client *redis.Client
	ttl    time.Duration
	rtt    time.Duration
}

// New connects and verifies the backend for the given namespace.
func New(id string, opts Options) (*Cache, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{id: id, client: client, ttl: opts.TTL, rtt: opts.Timeout}, nil
}

func (c *Cache) ID() string { return c.id }

func (c *Cache) key(k any) string { return "gbatis:" + c.id + ":" + cache.KeyOf(k) }

func (c *Cache) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.rtt)
}

func (c *Cache) Put(key, value any) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		log.Printf("gbatis: cache %s: cannot encode entry: %v", c.id, err)
		return
	}
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Set(ctx, c.key(key), buf.Bytes(), c.ttl).Err(); err != nil {
		log.Printf("gbatis: cache %s: put failed: %v", c.id, err)
	}
}

func (c *Cache) Get(key any) any {
	ctx, cancel := c.ctx()
	defer cancel()
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("gbatis: cache %s: get failed: %v", c.id, err)
		return nil
	}
	var value any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&value); err != nil {
		return nil
	}
	return value
}

func (c *Cache) Remove(key any) any {
	ctx, cancel := c.ctx()
	defer cancel()
	c.client.Del(ctx, c.key(key))
	return nil
}

func (c *Cache) Clear() {
	ctx, cancel := c.ctx()
	defer cancel()
	keys, err := c.client.Keys(ctx, "gbatis:"+c.id+":*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}

func (c *Cache) Size() int {
	ctx, cancel := c.ctx()
	defer cancel()
	keys, err := c.client.Keys(ctx, "gbatis:"+c.id+":*").Result()
	if err != nil {
		return 0
	}
	return len(keys)
}

// Close releases the client.
func (c *Cache) Close() error { return c.client.Close() }
