// Package cache keeps advisory local state in Redis: the identifier map,
// archive tags and display names. Nothing here is authoritative.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	identifierPrefix = "campaign:id:"
	archiveSet       = "campaign:archived"
	displayNames     = "campaign:names"
)

// IdentifierStore maps slugs and identifiers to campaign ids with a TTL.
type IdentifierStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdentifierStore(rdb *redis.Client, ttl time.Duration) *IdentifierStore {
	return &IdentifierStore{rdb: rdb, ttl: ttl}
}

func (s *IdentifierStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := s.rdb.Get(ctx, identifierPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *IdentifierStore) Remember(ctx context.Context, key, campaignID string) error {
	return s.rdb.Set(ctx, identifierPrefix+key, campaignID, s.ttl).Err()
}

// ArchiveStore tags campaigns hidden from default listings.
type ArchiveStore struct {
	rdb *redis.Client
}

func NewArchiveStore(rdb *redis.Client) *ArchiveStore {
	return &ArchiveStore{rdb: rdb}
}

func (s *ArchiveStore) Archive(ctx context.Context, campaignID string) error {
	return s.rdb.SAdd(ctx, archiveSet, campaignID).Err()
}

func (s *ArchiveStore) Unarchive(ctx context.Context, campaignID string) error {
	return s.rdb.SRem(ctx, archiveSet, campaignID).Err()
}

func (s *ArchiveStore) Archived(ctx context.Context) (map[string]bool, error) {
	ids, err := s.rdb.SMembers(ctx, archiveSet).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// NameStore maps owner addresses to display names.
type NameStore struct {
	rdb *redis.Client
}

func NewNameStore(rdb *redis.Client) *NameStore {
	return &NameStore{rdb: rdb}
}

func (s *NameStore) SetName(ctx context.Context, addr, name string) error {
	if name == "" {
		return s.rdb.HDel(ctx, displayNames, addr).Err()
	}
	return s.rdb.HSet(ctx, displayNames, addr, name).Err()
}

// Names returns the display names of the given addresses that have one.
func (s *NameStore) Names(ctx context.Context, addrs ...string) (map[string]string, error) {
	out := make(map[string]string, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}
	vals, err := s.rdb.HMGet(ctx, displayNames, addrs...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if name, ok := v.(string); ok && name != "" {
			out[addrs[i]] = name
		}
	}
	return out, nil
}

// CursorStore persists the indexer's position in the registry history.
type CursorStore struct {
	rdb *redis.Client
	key string
}

func NewCursorStore(rdb *redis.Client, key string) *CursorStore {
	return &CursorStore{rdb: rdb, key: key}
}

func (s *CursorStore) Load(ctx context.Context) (uint64, []byte, error) {
	vals, err := s.rdb.HMGet(ctx, s.key, "lt", "hash").Result()
	if err != nil {
		return 0, nil, err
	}
	ltStr, _ := vals[0].(string)
	hashStr, _ := vals[1].(string)
	if ltStr == "" {
		return 0, nil, nil
	}
	lt, err := strconv.ParseUint(ltStr, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("parse cursor lt %q: %w", ltStr, err)
	}
	hash, err := hex.DecodeString(hashStr)
	if err != nil {
		return 0, nil, fmt.Errorf("parse cursor hash: %w", err)
	}
	return lt, hash, nil
}

func (s *CursorStore) Save(ctx context.Context, lt uint64, hash []byte) error {
	return s.rdb.HSet(ctx, s.key, "lt", strconv.FormatUint(lt, 10), "hash", hex.EncodeToString(hash)).Err()
}
