package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"postkeeper/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	postKeyPrefix = "post:"
	timelineKey   = "posts:timeline"
	searchKey     = "posts:search"
)

// HybridStore keeps post documents in Badger and the derived indexes in
// Redis: a timeline sorted set for createdAt order and a hash of
// lower-cased searchable text per post.
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
	now func() time.Time
}

// NewHybridStore connects to Redis and opens Badger.
// Pass badgerPath="" to keep documents in memory (tests, throwaway runs).
func NewHybridStore(redisAddr string, badgerPath string) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opts := badger.DefaultOptions(badgerPath)
	if badgerPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Silence default logger

	db, err := badger.Open(opts)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return newHybridStore(rdb, db), nil
}

func newHybridStore(rdb *redis.Client, db *badger.DB) *HybridStore {
	return &HybridStore{
		rdb: rdb,
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Close cleans up connections
func (s *HybridStore) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func (s *HybridStore) Insert(ctx context.Context, post *model.Post) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}

	now := s.now()
	post.ID = id.String()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.SetTags(post.Tags)

	data, err := json.Marshal(post)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(post.ID), data)
	})
	if err != nil {
		return fmt.Errorf("save post: %w", err)
	}

	if err := s.index(ctx, post); err != nil {
		// An unindexed document would resurface on the next reindex.
		if derr := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(docKey(post.ID))
		}); derr != nil {
			err = errors.Join(err, derr)
		}
		return fmt.Errorf("index post: %w", err)
	}
	return nil
}

func (s *HybridStore) Get(ctx context.Context, id string) (*model.Post, error) {
	key, err := parseKey(id)
	if err != nil {
		return nil, err
	}

	var post model.Post
	err = s.db.View(func(txn *badger.Txn) error {
		return readDoc(txn, key, &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Find walks the timeline newest first, narrows it through the search
// index when a term is given, then loads the documents from Badger.
func (s *HybridStore) Find(ctx context.Context, filter Filter) ([]model.Post, error) {
	members, err := s.rdb.ZRevRange(ctx, timelineKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if _, id, ok := strings.Cut(m, ":"); ok {
			ids = append(ids, id)
		}
	}

	if filter.Term != "" && len(ids) > 0 {
		texts, err := s.rdb.HMGet(ctx, searchKey, ids...).Result()
		if err != nil {
			return nil, fmt.Errorf("read search index: %w", err)
		}
		matched := ids[:0]
		for i, v := range texts {
			text, ok := v.(string)
			if ok && model.SearchText(text).Contains(filter.Term) {
				matched = append(matched, ids[i])
			}
		}
		ids = matched
	}

	posts := make([]model.Post, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var post model.Post
			err := readDoc(txn, docKey(id), &post)
			if errors.Is(err, ErrNotFound) {
				// Deleted after the index was read.
				continue
			}
			if err != nil {
				return err
			}
			posts = append(posts, post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *HybridStore) Replace(ctx context.Context, id string, post *model.Post) error {
	key, err := parseKey(id)
	if err != nil {
		return err
	}

	var saved model.Post
	for {
		err = s.db.Update(func(txn *badger.Txn) error {
			saved = model.Post{}
			if err := readDoc(txn, key, &saved); err != nil {
				return err
			}
			saved.Replace(*post)
			saved.UpdatedAt = s.now()

			data, err := json.Marshal(saved)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		// Badger rejects the commit if another writer touched the key;
		// re-read so the last writer wins.
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return err
	}

	if err := s.rdb.HSet(ctx, searchKey, saved.ID, string(saved.SearchText())).Err(); err != nil {
		return fmt.Errorf("index post: %w", err)
	}
	*post = saved
	return nil
}

// Delete unindexes the post before removing its document, so a Redis
// failure leaves the post intact and listed.
func (s *HybridStore) Delete(ctx context.Context, id string) error {
	key, err := parseKey(id)
	if err != nil {
		return err
	}

	var post model.Post
	err = s.db.View(func(txn *badger.Txn) error {
		return readDoc(txn, key, &post)
	})
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, timelineKey, timelineMember(&post))
	pipe.HDel(ctx, searchKey, post.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unindex post: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var current model.Post
		if err := readDoc(txn, key, &current); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, ErrNotFound) {
		// Lost a race with another delete.
		return err
	}
	if err != nil {
		if ierr := s.index(ctx, &post); ierr != nil {
			err = errors.Join(err, ierr)
		}
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// Reindex adds every document in Badger to both Redis indexes, then drops
// index entries whose document is gone. It never clears the indexes, so
// posts written while it runs stay listed. It returns the number of posts
// indexed.
func (s *HybridStore) Reindex(ctx context.Context) (int, error) {
	var posts []model.Post
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(postKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var post model.Post
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &post)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			posts = append(posts, post)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pipe := s.rdb.Pipeline()
	for i := range posts {
		pipe.ZAdd(ctx, timelineKey, redis.Z{Member: timelineMember(&posts[i])})
		pipe.HSet(ctx, searchKey, posts[i].ID, string(posts[i].SearchText()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}

	if err := s.pruneIndex(ctx); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// pruneIndex removes timeline members and search fields whose document
// no longer exists in Badger.
func (s *HybridStore) pruneIndex(ctx context.Context) error {
	members, err := s.rdb.ZRange(ctx, timelineKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read timeline: %w", err)
	}
	fields, err := s.rdb.HKeys(ctx, searchKey).Result()
	if err != nil {
		return fmt.Errorf("read search index: %w", err)
	}

	var staleMembers []any
	var staleFields []string
	err = s.db.View(func(txn *badger.Txn) error {
		exists := func(id string) (bool, error) {
			_, err := txn.Get(docKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return false, nil
			}
			return err == nil, err
		}
		for _, m := range members {
			_, id, _ := strings.Cut(m, ":")
			ok, err := exists(id)
			if err != nil {
				return err
			}
			if !ok {
				staleMembers = append(staleMembers, m)
			}
		}
		for _, id := range fields {
			ok, err := exists(id)
			if err != nil {
				return err
			}
			if !ok {
				staleFields = append(staleFields, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(staleMembers) == 0 && len(staleFields) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	if len(staleMembers) > 0 {
		pipe.ZRem(ctx, timelineKey, staleMembers...)
	}
	if len(staleFields) > 0 {
		pipe.HDel(ctx, searchKey, staleFields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prune index: %w", err)
	}
	return nil
}

// CollectGarbage runs Badger value-log GC until there is nothing left to
// rewrite.
func (s *HybridStore) CollectGarbage(discardRatio float64) error {
	for {
		err := s.db.RunValueLogGC(discardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return err
		}
	}
}

// index adds the post to the timeline and the search index atomically.
func (s *HybridStore) index(ctx context.Context, post *model.Post) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, timelineKey, redis.Z{Member: timelineMember(post)})
	pipe.HSet(ctx, searchKey, post.ID, string(post.SearchText()))
	_, err := pipe.Exec(ctx)
	return err
}

// parseKey maps a caller-supplied id to its Badger key.
func parseKey(id string) ([]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return docKey(parsed.String()), nil
}

func docKey(id string) []byte {
	return []byte(postKeyPrefix + id)
}

func readDoc(txn *badger.Txn, key []byte, post *model.Post) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, post)
	})
}

// timelineMember sorts lexicographically by creation time. All members
// share score 0, so ZREVRANGE yields newest first; UUIDv7 ids break ties
// in insertion order.
func timelineMember(post *model.Post) string {
	return fmt.Sprintf("%020d:%s", post.CreatedAt.UnixNano(), post.ID)
}
