package repository

import (
	"context"
	"fmt"

	"testbridge/internal/common/cache"
	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"
)

const defaultResultKey = "testbridge:test_result"

const initScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`

// consumeScript returns the stored verdict and swaps a terminal one for
// Pending in a single server-side step. A missing or unknown value reads as
// Pending and is repaired.
const consumeScript = `
local v = redis.call('GET', KEYS[1])
if v == ARGV[2] or v == ARGV[3] then
  redis.call('SET', KEYS[1], ARGV[1])
  return v
end
if v ~= ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1])
end
return ARGV[1]
`

// RedisResultStore keeps the slot in one Redis key so several service
// replicas share the same verdict.
type RedisResultStore struct {
	cache cache.Cache
	key   string
}

// NewRedisResultStore creates a store on key (a default key is used when empty).
func NewRedisResultStore(cacheClient cache.Cache, key string) *RedisResultStore {
	if key == "" {
		key = defaultResultKey
	}
	return &RedisResultStore{cache: cacheClient, key: key}
}

// Init writes Pending when the key does not exist yet. A verdict left by
// another replica is kept.
func (s *RedisResultStore) Init(ctx context.Context) error {
	if s.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if _, err := s.cache.Eval(ctx, initScript, []string{s.key}, string(model.VerdictPending)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "init test result failed")
	}
	return nil
}

func (s *RedisResultStore) Reset(ctx context.Context) error {
	if s.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := s.cache.Set(ctx, s.key, string(model.VerdictPending), 0); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "reset test result failed")
	}
	return nil
}

func (s *RedisResultStore) Submit(ctx context.Context, verdict model.Verdict) error {
	if !verdict.IsTerminal() {
		return appErr.InvalidVerdictError(string(verdict))
	}
	if s.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := s.cache.Set(ctx, s.key, string(verdict), 0); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store test result failed")
	}
	return nil
}

func (s *RedisResultStore) Consume(ctx context.Context) (model.Verdict, error) {
	if s.cache == nil {
		return "", appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	reply, err := s.cache.Eval(ctx, consumeScript, []string{s.key},
		string(model.VerdictPending), string(model.VerdictPass), string(model.VerdictFail))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "consume test result failed")
	}
	raw, ok := reply.(string)
	if !ok {
		return "", appErr.Newf(appErr.CacheError, "unexpected consume reply %T", reply)
	}
	verdict := model.Verdict(raw)
	if !verdict.IsValid() {
		return "", appErr.New(appErr.CacheError).WithMessage(fmt.Sprintf("corrupt test result %q", raw))
	}
	return verdict, nil
}
