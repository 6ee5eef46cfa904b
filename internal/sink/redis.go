package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the publisher connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	TTL      time.Duration
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisConfig)

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// WithRedisTTL sets the expiry of published keys. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *RedisConfig) { c.TTL = ttl }
}

// RedisPublisher stores each report as a hash keyed by date plus one key per instrument
// holding its latest entry:
//
//	{prefix}:signals:{YYYYMMDD}  hash code -> entry JSON
//	{prefix}:signal:{code}       latest entry JSON
//	{prefix}:signals:latest      YYYYMMDD of the latest report
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(opts ...RedisOption) (*RedisPublisher, error) {
	cfg := &RedisConfig{
		Addr:     "localhost:6379",
		PoolSize: 10,
		Prefix:   "trenddata",
		TTL:      7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) Publish(ctx context.Context, date time.Time, es []Entry) error {
	day := date.Format(reportDateLayout)
	hash := p.dateKey(day)

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, hash)
	for _, e := range es {
		e.Date = date
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, hash, e.Code, data)
		pipe.Set(ctx, p.codeKey(e.Code), data, p.ttl)
	}
	if p.ttl > 0 {
		pipe.Expire(ctx, hash, p.ttl)
	}
	pipe.Set(ctx, p.latestKey(), day, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", day, err)
	}
	return nil
}

func (p *RedisPublisher) Latest(ctx context.Context) (time.Time, []Entry, error) {
	day, err := p.client.Get(ctx, p.latestKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil, ErrNotFound
	}
	if err != nil {
		return time.Time{}, nil, err
	}
	date, err := time.Parse(reportDateLayout, day)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("redis latest date %q: %w", day, err)
	}
	raw, err := p.client.HGetAll(ctx, p.dateKey(day)).Result()
	if err != nil {
		return time.Time{}, nil, err
	}
	es := make([]Entry, 0, len(raw))
	for code, v := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return time.Time{}, nil, fmt.Errorf("redis entry %s: %w", code, err)
		}
		es = append(es, e)
	}
	SortEntries(es)
	return date, es, nil
}

func (p *RedisPublisher) Lookup(ctx context.Context, code string) (Entry, error) {
	data, err := p.client.Get(ctx, p.codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("redis entry %s: %w", code, err)
	}
	return e, nil
}

func (p *RedisPublisher) dateKey(day string) string  { return p.wrapKey("signals:" + day) }
func (p *RedisPublisher) codeKey(code string) string { return p.wrapKey("signal:" + code) }
func (p *RedisPublisher) latestKey() string          { return p.wrapKey("signals:latest") }

func (p *RedisPublisher) wrapKey(key string) string {
	if p.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", p.prefix, key)
}
