package obstetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the profile document as a JSON string next to its
// companion keys. A sorted set ordered by last update backs the listing and
// one set per risk level backs the filter.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ceres"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) profileKey(id uuid.UUID) string { return r.prefix + ":profile:" + id.String() }
func (r *RedisStore) riskKey(id uuid.UUID) string    { return r.prefix + ":risk:" + id.String() }
func (r *RedisStore) authKey(id uuid.UUID) string    { return r.prefix + ":auth:" + id.String() }
func (r *RedisStore) indexKey() string               { return r.prefix + ":profiles" }
func (r *RedisStore) riskIndexKey(level RiskLevel) string {
	return r.prefix + ":risk-index:" + string(level)
}

func (r *RedisStore) Load(ctx context.Context, id uuid.UUID) (*Profile, error) {
	doc, err := r.rdb.Get(ctx, r.profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", id, err)
	}
	var p Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &p, nil
}

func (r *RedisStore) Save(ctx context.Context, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.profileKey(p.ID), doc, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(p.UpdatedAt.UnixNano()),
			Member: p.ID.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.profileKey(id), r.riskKey(id), r.authKey(id))
		pipe.ZRem(ctx, r.indexKey(), id.String())
		pipe.SRem(ctx, r.riskIndexKey(RiskLow), id.String())
		pipe.SRem(ctx, r.riskIndexKey(RiskHigh), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return nil
}

// List pages through the profile index. Index entries whose document is
// gone are pruned and the page is read again, so total only counts
// profiles that exist.
func (r *RedisStore) List(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, error) {
	for attempt := 0; ; attempt++ {
		items, total, stale, err := r.listPage(ctx, filter, limit, offset)
		if err != nil || len(stale) == 0 {
			return items, total, err
		}
		if err := r.pruneIndex(ctx, stale); err != nil {
			return nil, 0, err
		}
		if attempt == maxIndexPrunes {
			return items, total - len(stale), nil
		}
	}
}

// maxIndexPrunes bounds List retries while writers keep racing the index.
const maxIndexPrunes = 3

func (r *RedisStore) pruneIndex(ctx context.Context, stale []string) error {
	members := make([]interface{}, len(stale))
	for i, s := range stale {
		members[i] = s
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.indexKey(), members...)
		for _, l := range []RiskLevel{RiskLow, RiskHigh} {
			pipe.SRem(ctx, r.riskIndexKey(l), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune profile index: %w", err)
	}
	return nil
}

func (r *RedisStore) listPage(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, []string, error) {
	ids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("list profiles: %w", err)
	}
	if filter.RiskLevel != "" {
		members, err := r.rdb.SMembers(ctx, r.riskIndexKey(filter.RiskLevel)).Result()
		if err != nil {
			return nil, 0, nil, fmt.Errorf("list risk index: %w", err)
		}
		in := make(map[string]bool, len(members))
		for _, m := range members {
			in[m] = true
		}
		kept := ids[:0]
		for _, id := range ids {
			if in[id] {
				kept = append(kept, id)
			}
		}
		ids = kept
	}

	total := len(ids)
	items := []*ProfileSummary{}
	if offset >= total {
		return items, total, nil, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := ids[offset:end]

	pipe := r.rdb.Pipeline()
	docs := make([]*redis.StringCmd, len(page))
	risks := make([]*redis.StringCmd, len(page))
	for i, s := range page {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("corrupt profile index entry %q: %w", s, err)
		}
		docs[i] = pipe.Get(ctx, r.profileKey(id))
		risks[i] = pipe.Get(ctx, r.riskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, nil, fmt.Errorf("load profile page: %w", err)
	}

	var stale []string
	for i := range page {
		doc, err := docs[i].Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, page[i])
			continue
		}
		if err != nil {
			return nil, 0, nil, fmt.Errorf("load profile %s: %w", page[i], err)
		}
		var p Profile
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, 0, nil, fmt.Errorf("decode profile %s: %w", page[i], err)
		}
		items = append(items, Summarize(&p, RiskLevel(risks[i].Val())))
	}
	return items, total, stale, nil
}

func (r *RedisStore) SaveRiskLevel(ctx context.Context, id uuid.UUID, level RiskLevel) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.riskKey(id), string(level), 0)
		for _, l := range []RiskLevel{RiskLow, RiskHigh} {
			if l == level {
				pipe.SAdd(ctx, r.riskIndexKey(l), id.String())
			} else {
				pipe.SRem(ctx, r.riskIndexKey(l), id.String())
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save risk level %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) LoadRiskLevel(ctx context.Context, id uuid.UUID) (RiskLevel, error) {
	v, err := r.rdb.Get(ctx, r.riskKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load risk level %s: %w", id, err)
	}
	return RiskLevel(v), nil
}

func (r *RedisStore) SetAuthenticated(ctx context.Context, id uuid.UUID, authenticated bool) error {
	v := "0"
	if authenticated {
		v = "1"
	}
	if err := r.rdb.Set(ctx, r.authKey(id), v, 0).Err(); err != nil {
		return fmt.Errorf("save auth flag %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) IsAuthenticated(ctx context.Context, id uuid.UUID) (bool, error) {
	v, err := r.rdb.Get(ctx, r.authKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load auth flag %s: %w", id, err)
	}
	return v == "1", nil
}
