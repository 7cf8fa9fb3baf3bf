package store

import (
	"context"
	"fmt"
	"strconv"

	"booksaga/internal/orders/saga"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the minimal client surface used by RedisStore.
type RedisClient interface {
	redis.Scripter
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

const (
	scriptMissing   = 0
	scriptApplied   = 1
	scriptCondition = 2
)

// Scripts answer {status, ...fields}. Each runs atomically on one key.
var (
	addQuantityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {0} end
local q = redis.call('HINCRBY', KEYS[1], 'quantity', ARGV[1])
return {1, q, redis.call('HGET', KEYS[1], 'price')}
`)

	decrementIfAvailableScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {0} end
local q = tonumber(redis.call('HGET', KEYS[1], 'quantity'))
local n = tonumber(ARGV[1])
if q - n <= 0 then return {2} end
q = redis.call('HINCRBY', KEYS[1], 'quantity', -n)
return {1, q, redis.call('HGET', KEYS[1], 'price')}
`)

	zeroPointsIfEqualScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {0} end
local p = tonumber(redis.call('HGET', KEYS[1], 'points'))
if p ~= tonumber(ARGV[1]) then return {2} end
redis.call('HSET', KEYS[1], 'points', 0)
return {1, 0}
`)
)

// RedisStore keeps books and customers as Redis hashes.
type RedisStore struct {
	client         RedisClient
	bookPrefix     string
	customerPrefix string
}

// NewRedisStore constructs a Redis-backed RecordStore.
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{
		client:         client,
		bookPrefix:     "book:",
		customerPrefix: "customer:",
	}
}

// PutBook writes a book hash (for seeding and tests).
func (r *RedisStore) PutBook(ctx context.Context, book saga.Book) error {
	return r.client.HSet(ctx, r.bookPrefix+book.BookID, map[string]any{
		"book_id":  book.BookID,
		"quantity": book.Quantity,
		"price":    strconv.FormatFloat(book.Price, 'f', -1, 64),
	}).Err()
}

func (r *RedisStore) GetBook(ctx context.Context, bookID string) (saga.Book, error) {
	fields, err := r.client.HGetAll(ctx, r.bookPrefix+bookID).Result()
	if err != nil {
		return saga.Book{}, err
	}
	if len(fields) == 0 {
		return saga.Book{}, fmt.Errorf("book %q: %w", bookID, saga.ErrNotFound)
	}
	quantity, err := strconv.ParseInt(fields["quantity"], 10, 64)
	if err != nil {
		return saga.Book{}, fmt.Errorf("book %q quantity: %w", bookID, err)
	}
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return saga.Book{}, fmt.Errorf("book %q price: %w", bookID, err)
	}
	return saga.Book{BookID: bookID, Quantity: quantity, Price: price}, nil
}

// QueryBook is a key lookup; a hash key is the only key condition Redis offers.
func (r *RedisStore) QueryBook(ctx context.Context, bookID string) (saga.Book, error) {
	return r.GetBook(ctx, bookID)
}

func (r *RedisStore) AddQuantity(ctx context.Context, bookID string, delta int64) (saga.Book, error) {
	res, err := addQuantityScript.Run(ctx, r.client, []string{r.bookPrefix + bookID}, delta).Slice()
	if err != nil {
		return saga.Book{}, err
	}
	return bookFromScript(bookID, res)
}

func (r *RedisStore) DecrementIfAvailable(ctx context.Context, bookID string, n int64) (saga.Book, error) {
	res, err := decrementIfAvailableScript.Run(ctx, r.client, []string{r.bookPrefix + bookID}, n).Slice()
	if err != nil {
		return saga.Book{}, err
	}
	return bookFromScript(bookID, res)
}

func (r *RedisStore) GetCustomer(ctx context.Context, userID string) (saga.Customer, error) {
	fields, err := r.client.HGetAll(ctx, r.customerPrefix+userID).Result()
	if err != nil {
		return saga.Customer{}, err
	}
	if len(fields) == 0 {
		return saga.Customer{}, fmt.Errorf("customer %q: %w", userID, saga.ErrNotFound)
	}
	points, err := strconv.ParseInt(fields["points"], 10, 64)
	if err != nil {
		return saga.Customer{}, fmt.Errorf("customer %q points: %w", userID, err)
	}
	return saga.Customer{UserID: userID, Points: points}, nil
}

func (r *RedisStore) ZeroPointsIfEqual(ctx context.Context, userID string, expected int64) (saga.Customer, error) {
	res, err := zeroPointsIfEqualScript.Run(ctx, r.client, []string{r.customerPrefix + userID}, expected).Slice()
	if err != nil {
		return saga.Customer{}, err
	}
	if err := scriptStatus("customer", userID, res); err != nil {
		return saga.Customer{}, err
	}
	return saga.Customer{UserID: userID, Points: 0}, nil
}

func (r *RedisStore) SetPoints(ctx context.Context, userID string, points int64) (saga.Customer, error) {
	err := r.client.HSet(ctx, r.customerPrefix+userID, map[string]any{
		"user_id": userID,
		"points":  points,
	}).Err()
	if err != nil {
		return saga.Customer{}, err
	}
	return saga.Customer{UserID: userID, Points: points}, nil
}

func scriptStatus(entity, key string, res []any) error {
	if len(res) == 0 {
		return fmt.Errorf("%s %q: empty script reply", entity, key)
	}
	status, ok := res[0].(int64)
	if !ok {
		return fmt.Errorf("%s %q: unexpected script reply %T", entity, key, res[0])
	}
	switch status {
	case scriptApplied:
		return nil
	case scriptMissing:
		return fmt.Errorf("%s %q: %w", entity, key, saga.ErrNotFound)
	case scriptCondition:
		return fmt.Errorf("%s %q: %w", entity, key, saga.ErrConditionFailed)
	default:
		return fmt.Errorf("%s %q: unknown script status %d", entity, key, status)
	}
}

func bookFromScript(bookID string, res []any) (saga.Book, error) {
	if err := scriptStatus("book", bookID, res); err != nil {
		return saga.Book{}, err
	}
	if len(res) < 3 {
		return saga.Book{}, fmt.Errorf("book %q: short script reply", bookID)
	}
	quantity, ok := res[1].(int64)
	if !ok {
		return saga.Book{}, fmt.Errorf("book %q: unexpected quantity %T", bookID, res[1])
	}
	rawPrice, _ := res[2].(string)
	price, err := strconv.ParseFloat(rawPrice, 64)
	if err != nil {
		return saga.Book{}, fmt.Errorf("book %q price: %w", bookID, err)
	}
	return saga.Book{BookID: bookID, Quantity: quantity, Price: price}, nil
}
