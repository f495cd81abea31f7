package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/model"
)

const cartTTL = 30 * 24 * time.Hour

// RedisCartStore keeps each cart as a hash of product id -> quantity.
type RedisCartStore struct {
	client *redis.Client
}

func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	return &RedisCartStore{client: client}
}

// NewRedisClient parses url and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func cartKey(userID string) string { return "cart:" + userID }

func (c *RedisCartStore) AddToCart(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	key := cartKey(userID)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, strconv.FormatInt(productID, 10), int64(qty))
		p.Expire(ctx, key, cartTTL)
		return nil
	})
	return storageErr(err)
}

// setIfPresent only overwrites an existing field.
var setIfPresent = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

func (c *RedisCartStore) SetCartQuantity(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	n, err := setIfPresent.Run(ctx, c.client, []string{cartKey(userID)},
		strconv.FormatInt(productID, 10), qty, int(cartTTL.Seconds())).Int()
	if err != nil {
		return storageErr(err)
	}
	if n == 0 {
		return model.ErrCartItemNotFound
	}
	return nil
}

func (c *RedisCartStore) RemoveFromCart(ctx context.Context, userID string, productID int64) error {
	n, err := c.client.HDel(ctx, cartKey(userID), strconv.FormatInt(productID, 10)).Result()
	if err != nil {
		return storageErr(err)
	}
	if n == 0 {
		return model.ErrCartItemNotFound
	}
	return nil
}

// GetCart returns lines ordered by product id; a hash keeps no insertion order.
func (c *RedisCartStore) GetCart(ctx context.Context, userID string) ([]model.CartLine, error) {
	fields, err := c.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]model.CartLine, 0, len(fields))
	for f, v := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad product id %q", userID, f)
		}
		qty, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad quantity %q", userID, v)
		}
		out = append(out, model.CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (c *RedisCartStore) ClearCart(ctx context.Context, userID string) error {
	return storageErr(c.client.Del(ctx, cartKey(userID)).Err())
}

// takeOrdered decrements each ordered field and deletes those left at zero.
var takeOrdered = redis.NewScript(`
for i = 1, #ARGV, 2 do
	local left = redis.call("HINCRBY", KEYS[1], ARGV[i], -tonumber(ARGV[i + 1]))
	if left <= 0 then
		redis.call("HDEL", KEYS[1], ARGV[i])
	end
end
return 0
`)

func (c *RedisCartStore) RemoveOrdered(ctx context.Context, userID string, ordered []model.CartLine) error {
	if len(ordered) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(ordered))
	for _, l := range ordered {
		args = append(args, strconv.FormatInt(l.ProductID, 10), l.Quantity)
	}
	return storageErr(takeOrdered.Run(ctx, c.client, []string{cartKey(userID)}, args...).Err())
}
