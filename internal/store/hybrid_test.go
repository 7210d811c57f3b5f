package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"postkeeper/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHybridStore wires the store to miniredis and an in-memory Badger.
func newTestHybridStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := newHybridStore(rdb, db)
	t.Cleanup(func() { st.Close() })

	return st, mr
}

func TestHybridStore_Insert_And_Get(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	post := model.NewPost("Hello", "First post", "Tech", []string{"intro"})
	require.NoError(t, st.Insert(ctx, &post))

	_, err := uuid.Parse(post.ID)
	require.NoError(t, err, "id should be a uuid")
	assert.False(t, post.CreatedAt.IsZero())
	assert.Equal(t, post.CreatedAt, post.UpdatedAt)

	got, err := st.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post, *got)

	// Indexes live in Redis, the document does not.
	members, err := mr.ZMembers(timelineKey)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, "hello\x00first post\x00tech", mr.HGet(searchKey, post.ID))
	assert.False(t, mr.Exists(postKeyPrefix+post.ID))
}

func TestHybridStore_Get_Errors(t *testing.T) {
	st, _ := newTestHybridStore(t)
	ctx := context.Background()

	_, err := st.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, err, ErrNotFound, "malformed ids read as not found")
}

func TestHybridStore_Find_NewestFirst(t *testing.T) {
	st, _ := newTestHybridStore(t)
	ctx := context.Background()

	// Frozen clock: ordering must survive identical timestamps.
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return frozen }

	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		p := model.NewPost(title, "body", "misc", nil)
		require.NoError(t, st.Insert(ctx, &p))
		ids = append(ids, p.ID)
	}

	posts, err := st.Find(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{posts[0].Title, posts[1].Title, posts[2].Title})
	assert.Equal(t, ids[2], posts[0].ID)
}

func TestHybridStore_Find_Term(t *testing.T) {
	st, _ := newTestHybridStore(t)
	ctx := context.Background()

	fixtures := []model.Post{
		model.NewPost("Go tips", "channels and goroutines", "Tech", nil),
		model.NewPost("Sourdough", "flour, water, salt", "Cooking", nil),
		model.NewPost("Weekend", "hiking with friends", "Life", []string{"tech"}),
	}
	for i := range fixtures {
		require.NoError(t, st.Insert(ctx, &fixtures[i]))
	}

	posts, err := st.Find(ctx, Filter{Term: "TECH"})
	require.NoError(t, err)
	require.Len(t, posts, 1, "tags are not searched")
	assert.Equal(t, "Go tips", posts[0].Title)

	posts, err = st.Find(ctx, Filter{Term: "water"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Sourdough", posts[0].Title)

	posts, err = st.Find(ctx, Filter{Term: "e"})
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	posts, err = st.Find(ctx, Filter{Term: ".*"})
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts, "terms are literal, not patterns")
}

func TestHybridStore_Replace(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	post := model.NewPost("Draft", "tbd", "Misc", []string{"a", "b"})
	require.NoError(t, st.Insert(ctx, &post))
	created := post.CreatedAt

	st.now = func() time.Time { return created.Add(time.Minute) }

	update := model.NewPost("Final", "done", "Tech", nil)
	require.NoError(t, st.Replace(ctx, post.ID, &update))

	assert.Equal(t, post.ID, update.ID)
	assert.Equal(t, "Final", update.Title)
	assert.Equal(t, []string{}, update.Tags)
	assert.Equal(t, created, update.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), update.UpdatedAt)

	got, err := st.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, update, *got)
	assert.Equal(t, "final\x00done\x00tech", mr.HGet(searchKey, post.ID))

	missing := model.NewPost("x", "y", "z", nil)
	assert.ErrorIs(t, st.Replace(ctx, uuid.NewString(), &missing), ErrNotFound)
	assert.ErrorIs(t, st.Replace(ctx, "123", &missing), ErrInvalidID)
}

func TestHybridStore_Delete(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	post := model.NewPost("Gone soon", "bye", "Misc", nil)
	require.NoError(t, st.Insert(ctx, &post))

	require.NoError(t, st.Delete(ctx, post.ID))

	_, err := st.Get(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, post.ID), ErrNotFound, "second delete")
	assert.ErrorIs(t, st.Delete(ctx, "nope"), ErrNotFound)

	members, _ := mr.ZMembers(timelineKey)
	assert.Empty(t, members)
	fields, _ := mr.HKeys(searchKey)
	assert.Empty(t, fields)
}

func TestHybridStore_Reindex(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		p := model.NewPost(title, "body", "Tech", nil)
		require.NoError(t, st.Insert(ctx, &p))
	}

	// Redis is volatile; losing it must not lose posts.
	mr.FlushAll()
	posts, err := st.Find(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, posts)

	n, err := st.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	posts, err = st.Find(ctx, Filter{Term: "tech"})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "two", posts[0].Title)
}

func TestHybridStore_Reindex_DropsStaleEntries(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	kept := model.NewPost("kept", "body", "Tech", nil)
	require.NoError(t, st.Insert(ctx, &kept))

	ghost := uuid.NewString()
	_, err := mr.ZAdd(timelineKey, 0, "00000000000000000001:"+ghost)
	require.NoError(t, err)
	mr.HSet(searchKey, ghost, "ghost")

	n, err := st.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, _ := mr.ZMembers(timelineKey)
	assert.Equal(t, []string{timelineMember(&kept)}, members)
	fields, _ := mr.HKeys(searchKey)
	assert.Equal(t, []string{kept.ID}, fields)
}

// Posts written while a reindex is in flight must stay listed and
// searchable once it finishes.
func TestHybridStore_Reindex_ConcurrentInserts(t *testing.T) {
	st, _ := newTestHybridStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		p := model.NewPost("seed", "body", "Tech", nil)
		require.NoError(t, st.Insert(ctx, &p))
	}

	want := 20
	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Reindex(ctx)
			assert.NoError(t, err)
		}()

		for i := 0; i < 10; i++ {
			p := model.NewPost("fresh", "during reindex", "News", nil)
			require.NoError(t, st.Insert(ctx, &p))
			want++
		}
		wg.Wait()

		posts, err := st.Find(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, posts, want, "round %d", round)

		fresh, err := st.Find(ctx, Filter{Term: "during reindex"})
		require.NoError(t, err)
		assert.Len(t, fresh, want-20, "round %d", round)
	}
}

func TestHybridStore_Insert_RedisFailure(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	mr.SetError("server down")
	post := model.NewPost("Orphan", "never indexed", "Misc", nil)
	err := st.Insert(ctx, &post)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index post")
	mr.SetError("")

	_, err = st.Get(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound, "failed insert leaves no document")

	n, err := st.Reindex(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing for a reindex to resurrect")

	posts, err := st.Find(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestHybridStore_Delete_RedisFailure(t *testing.T) {
	st, mr := newTestHybridStore(t)
	ctx := context.Background()

	post := model.NewPost("Sticky", "still here", "Misc", nil)
	require.NoError(t, st.Insert(ctx, &post))

	mr.SetError("server down")
	err := st.Delete(ctx, post.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	mr.SetError("")

	got, err := st.Get(ctx, post.ID)
	require.NoError(t, err, "failed delete keeps the document")
	assert.Equal(t, post.ID, got.ID)

	posts, err := st.Find(ctx, Filter{Term: "sticky"})
	require.NoError(t, err)
	require.Len(t, posts, 1, "and keeps it listed")

	require.NoError(t, st.Delete(ctx, post.ID))
	_, err = st.Get(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHybridStore_CollectGarbage_InMemory(t *testing.T) {
	st, _ := newTestHybridStore(t)
	assert.NoError(t, st.CollectGarbage(0.5))
}

func TestNewHybridStore_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewHybridStore(addr, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
