// Package storetest is a conformance suite run against every store.Store
// implementation. Each subtest gets a fresh, empty store from newStore.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"
)

// base is a whole-second timestamp so every backend round-trips it exactly.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"Users", testUsers},
		{"DuplicateUsername", testDuplicateUsername},
		{"TokenReuse", testTokenReuse},
		{"PostRoundTrip", testPostRoundTrip},
		{"HashtagGetOrCreate", testHashtagGetOrCreate},
		{"LinkIdempotentAndOrdered", testLinkIdempotentAndOrdered},
		{"ClearPostHashtags", testClearPostHashtags},
		{"TxRollback", testTxRollback},
		{"ListPostsFilters", testListPostsFilters},
		{"DeletePostCascades", testDeletePostCascades},
		{"Comments", testComments},
		{"LongIDLists", testLongIDLists},
		{"SiteStats", testSiteStats},
		{"ConcurrentGetOrCreate", testConcurrentGetOrCreate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tc.fn(t, st)
		})
	}
}

func createUser(t *testing.T, st store.Store, username string) model.User {
	t.Helper()
	u := model.User{Username: username, Email: username + "@example.com", PasswordHash: "hash", CreatedAt: base}
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		id, err := tx.CreateUser(context.Background(), &u)
		u.ID = id
		return err
	})
	require.NoError(t, err)
	return u
}

func createPost(t *testing.T, st store.Store, authorID int64, title string, created time.Time, tags ...string) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		id, err = tx.CreatePost(ctx, &model.Post{AuthorID: authorID, Title: title, Content: title + " body", CreatedAt: created})
		if err != nil {
			return err
		}
		for _, name := range tags {
			h, err := tx.GetOrCreateHashtag(ctx, name)
			if err != nil {
				return err
			}
			if err := tx.LinkPostHashtag(ctx, id, h.ID); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return id
}

func postIDs(posts []model.Post) []int64 {
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func testUsers(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	require.NotZero(t, u.ID)

	got, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.True(t, base.Equal(got.CreatedAt))

	byName, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	_, err = st.GetUser(ctx, u.ID+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateUsername(t *testing.T, st store.Store) {
	createUser(t, st, "alice")
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CreateUser(context.Background(), &model.User{Username: "alice", PasswordHash: "x", CreatedAt: base})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicateUsername)
}

func testTokenReuse(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")

	first, err := st.GetOrCreateToken(ctx, model.Token{Key: "key-one", UserID: u.ID, CreatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, "key-one", first.Key)

	second, err := st.GetOrCreateToken(ctx, model.Token{Key: "key-two", UserID: u.ID, CreatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, "key-one", second.Key, "existing token must be reused")

	got, err := st.GetToken(ctx, "key-one")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	_, err = st.GetToken(ctx, "key-two")
	assert.ErrorIs(t, err, store.ErrNotFound)

	other := createUser(t, st, "bob")
	_, err = st.GetTokenByUser(ctx, other.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPostRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	id := createPost(t, st, u.ID, "Hello", base)

	p, err := st.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", p.Title)
	assert.Equal(t, "Hello body", p.Content)
	assert.Equal(t, u.ID, p.AuthorID)
	assert.Equal(t, u.ID, p.Author.ID)
	assert.Equal(t, "alice", p.Author.Username)
	assert.Empty(t, p.Author.PasswordHash)
	assert.True(t, base.Equal(p.CreatedAt))

	err = st.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePost(ctx, id, "Renamed", "new body")
	})
	require.NoError(t, err)
	p, err = st.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Title)
	assert.Equal(t, "new body", p.Content)
	assert.True(t, base.Equal(p.CreatedAt), "update must not touch created_at")

	err = st.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdatePost(ctx, id+1000, "x", "y")
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.GetPost(ctx, id+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testHashtagGetOrCreate(t *testing.T, st store.Store) {
	ctx := context.Background()
	var a, b model.Hashtag
	err := st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if a, err = tx.GetOrCreateHashtag(ctx, "music"); err != nil {
			return err
		}
		b, err = tx.GetOrCreateHashtag(ctx, "music")
		return err
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, a, b)

	got, err := st.GetHashtag(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "music", got.Name)

	_, err = st.GetHashtag(ctx, a.ID+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)

	tags, err := st.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Hashtag{a}, tags)
}

func testLinkIdempotentAndOrdered(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	id := createPost(t, st, u.ID, "Tagged", base, "zeta", "alpha", "zeta", "mid")

	names, err := st.HashtagNamesByPost(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names[id])

	empty, err := st.HashtagNamesByPost(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testClearPostHashtags(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	id := createPost(t, st, u.ID, "Tagged", base, "a", "b")

	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ClearPostHashtags(ctx, id); err != nil {
			return err
		}
		h, err := tx.GetOrCreateHashtag(ctx, "c")
		if err != nil {
			return err
		}
		return tx.LinkPostHashtag(ctx, id, h.ID)
	})
	require.NoError(t, err)

	names, err := st.HashtagNamesByPost(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names[id])

	// the cleared hashtags stay in the catalogue
	tags, err := st.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 3)
}

func testTxRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx store.Tx) error {
		id, err := tx.CreatePost(ctx, &model.Post{AuthorID: u.ID, Title: "t", Content: "c", CreatedAt: base})
		if err != nil {
			return err
		}
		h, err := tx.GetOrCreateHashtag(ctx, "ghost")
		if err != nil {
			return err
		}
		if err := tx.LinkPostHashtag(ctx, id, h.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	posts, err := st.ListPosts(ctx, store.PostListOpts{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	tags, err := st.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	assert.Panics(t, func() {
		_ = st.WithTx(ctx, func(tx store.Tx) error {
			if _, err := tx.GetOrCreateHashtag(ctx, "panicked"); err != nil {
				return err
			}
			panic("boom")
		})
	})
	tags, err = st.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func testListPostsFilters(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	p1 := createPost(t, st, alice.ID, "one", base, "music")
	p2 := createPost(t, st, bob.ID, "two", base.Add(time.Minute), "music", "jazz")
	p3 := createPost(t, st, alice.ID, "three", base.Add(2*time.Minute))
	// same timestamp as p3: the newer id sorts first
	p4 := createPost(t, st, bob.ID, "four", base.Add(2*time.Minute), "jazz")

	all, err := st.ListPosts(ctx, store.PostListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []int64{p4, p3, p2, p1}, postIDs(all))

	music, err := st.ListPosts(ctx, store.PostListOpts{Hashtag: "music"})
	require.NoError(t, err)
	assert.Equal(t, []int64{p2, p1}, postIDs(music))

	none, err := st.ListPosts(ctx, store.PostListOpts{Hashtag: "unknown"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	byAlice, err := st.ListPosts(ctx, store.PostListOpts{AuthorID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{p3, p1}, postIDs(byAlice))

	both, err := st.ListPosts(ctx, store.PostListOpts{AuthorID: bob.ID, Hashtag: "jazz"})
	require.NoError(t, err)
	assert.Equal(t, []int64{p4, p2}, postIDs(both))

	names, err := st.HashtagNamesByPost(ctx, postIDs(all))
	require.NoError(t, err)
	assert.Equal(t, []string{"jazz"}, names[p4])
	assert.Nil(t, names[p3])
	assert.Equal(t, []string{"music", "jazz"}, names[p2])
}

func testDeletePostCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	id := createPost(t, st, u.ID, "doomed", base, "keep")
	cid, err := st.CreateComment(ctx, &model.Comment{PostID: id, AuthorID: u.ID, Content: "hi", CreatedAt: base})
	require.NoError(t, err)

	require.NoError(t, st.DeletePost(ctx, id))
	assert.ErrorIs(t, st.DeletePost(ctx, id), store.ErrNotFound)

	_, err = st.GetPost(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetComment(ctx, cid)
	assert.ErrorIs(t, err, store.ErrNotFound)

	names, err := st.HashtagNamesByPost(ctx, []int64{id})
	require.NoError(t, err)
	assert.Empty(t, names[id])

	tags, err := st.ListHashtags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "keep", tags[0].Name)
}

func testComments(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	p1 := createPost(t, st, alice.ID, "one", base)
	p2 := createPost(t, st, alice.ID, "two", base)

	var ids []int64
	for i, postID := range []int64{p1, p2, p1} {
		id, err := st.CreateComment(ctx, &model.Comment{
			PostID:    postID,
			AuthorID:  bob.ID,
			Content:   fmt.Sprintf("comment %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	c, err := st.GetComment(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, p1, c.PostID)
	assert.Equal(t, "bob", c.Author.Username)
	assert.Empty(t, c.Author.PasswordHash)
	assert.Equal(t, "comment 0", c.Content)

	onP1, err := st.ListComments(ctx, store.CommentListOpts{PostIDs: []int64{p1}})
	require.NoError(t, err)
	require.Len(t, onP1, 2)
	assert.Equal(t, ids[0], onP1[0].ID)
	assert.Equal(t, ids[2], onP1[1].ID)

	all, err := st.ListComments(ctx, store.CommentListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := st.ListComments(ctx, store.CommentListOpts{PostIDs: []int64{}})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	require.NoError(t, st.UpdateComment(ctx, ids[1], "edited"))
	c, err = st.GetComment(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "edited", c.Content)
	assert.ErrorIs(t, st.UpdateComment(ctx, ids[2]+1000, "x"), store.ErrNotFound)

	require.NoError(t, st.DeleteComment(ctx, ids[1]))
	assert.ErrorIs(t, st.DeleteComment(ctx, ids[1]), store.ErrNotFound)

	_, err = st.CreateComment(ctx, &model.Comment{PostID: p2 + 1000, AuthorID: bob.ID, Content: "orphan", CreatedAt: base})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testLongIDLists(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")

	n := 2*store.IDBatchSize + 1
	ids := make([]int64, 0, n)
	err := st.WithTx(ctx, func(tx store.Tx) error {
		tag, err := tx.GetOrCreateHashtag(ctx, "bulk")
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			id, err := tx.CreatePost(ctx, &model.Post{AuthorID: u.ID, Title: fmt.Sprint("p", i), Content: "c", CreatedAt: base})
			if err != nil {
				return err
			}
			if err := tx.LinkPostHashtag(ctx, id, tag.ID); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	require.NoError(t, err)

	// Last post first so ids order and chunk order disagree.
	first, last := ids[0], ids[n-1]
	var commentIDs []int64
	for _, postID := range []int64{last, first, last} {
		id, err := st.CreateComment(ctx, &model.Comment{PostID: postID, AuthorID: u.ID, Content: "hi", CreatedAt: base})
		require.NoError(t, err)
		commentIDs = append(commentIDs, id)
	}

	// Pad with unknown ids well past any driver's bound-parameter limit.
	lookup := append([]int64{}, ids...)
	for i := int64(1); i <= 70000; i++ {
		lookup = append(lookup, last+i)
	}

	names, err := st.HashtagNamesByPost(ctx, lookup)
	require.NoError(t, err)
	assert.Len(t, names, n)
	assert.Equal(t, []string{"bulk"}, names[first])
	assert.Equal(t, []string{"bulk"}, names[last])

	comments, err := st.ListComments(ctx, store.CommentListOpts{PostIDs: lookup})
	require.NoError(t, err)
	got := make([]int64, 0, len(comments))
	for _, c := range comments {
		got = append(got, c.ID)
	}
	assert.Equal(t, commentIDs, got)
}

func testSiteStats(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	id := createPost(t, st, u.ID, "one", base, "a", "b")
	_, err := st.CreateComment(ctx, &model.Comment{PostID: id, AuthorID: u.ID, Content: "hi", CreatedAt: base})
	require.NoError(t, err)

	stats, err := st.GetSiteStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SiteStats{Users: 1, Posts: 1, Comments: 1, Hashtags: 2}, stats)
	assert.NoError(t, st.Ping(ctx))
}

func testConcurrentGetOrCreate(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")

	const writers = 8
	var (
		mu  sync.Mutex
		ids = map[int64]struct{}{}
	)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return st.WithTx(ctx, func(tx store.Tx) error {
				postID, err := tx.CreatePost(ctx, &model.Post{AuthorID: u.ID, Title: "race", Content: "c", CreatedAt: base})
				if err != nil {
					return err
				}
				h, err := tx.GetOrCreateHashtag(ctx, "shared")
				if err != nil {
					return err
				}
				mu.Lock()
				ids[h.ID] = struct{}{}
				mu.Unlock()
				return tx.LinkPostHashtag(ctx, postID, h.ID)
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, ids, 1, "all writers must resolve to one hashtag row")

	tags, err := st.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	posts, err := st.ListPosts(ctx, store.PostListOpts{Hashtag: "shared"})
	require.NoError(t, err)
	assert.Len(t, posts, writers)
}
