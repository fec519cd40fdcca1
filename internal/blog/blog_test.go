package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/store/sqlite"
	"github.com/alphabot-ai/tagblog/internal/validation"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st := newTestStore(t)
	return NewService(st), st
}

func createUser(t *testing.T, st store.Store, username string) model.User {
	t.Helper()
	u := model.User{Username: username, Email: username + "@example.com", PasswordHash: "hash", CreatedAt: time.Now()}
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		id, err := tx.CreateUser(context.Background(), &u)
		u.ID = id
		return err
	})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func TestCreatePostCollapsesTagVariants(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	post, err := svc.CreatePost(ctx, u.ID, PostInput{
		Title:    "Hello",
		Content:  "World",
		Hashtags: []string{"Music", "music ", "MUSIC"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"music"}, post.Hashtags)
	assert.Equal(t, u.ID, post.Author.ID)
	assert.Equal(t, "alice", post.Author.Username)
	assert.NotNil(t, post.Comments)
	assert.Empty(t, post.Comments)

	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "music", tags[0].Name)
}

func TestEquivalentTagsShareOneHashtag(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	_, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "a", Content: "a", Hashtags: []string{"  GoLang"}})
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, u.ID, PostInput{Title: "b", Content: "b", Hashtags: []string{"golang\t"}})
	require.NoError(t, err)

	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestCreatePostKeepsTagOrder(t *testing.T) {
	svc, st := newTestService(t)
	u := createUser(t, st, "alice")

	post, err := svc.CreatePost(context.Background(), u.ID, PostInput{
		Title:    "t",
		Content:  "c",
		Hashtags: []string{"zeta", "Alpha", "ZETA", "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "beta"}, post.Hashtags)
}

func TestCreatePostWithoutHashtags(t *testing.T) {
	svc, st := newTestService(t)
	u := createUser(t, st, "alice")

	post, err := svc.CreatePost(context.Background(), u.ID, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.NotNil(t, post.Hashtags)
	assert.Empty(t, post.Hashtags)
}

func TestCreatePostValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	_, err := svc.CreatePost(ctx, u.ID, PostInput{
		Title:    "   ",
		Content:  "",
		Hashtags: []string{"ok", " "},
	})
	verr, ok := validation.As(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Equal(t, []string{validation.MsgBlank}, verr.Fields["title"])
	assert.Equal(t, []string{validation.MsgBlank}, verr.Fields["content"])
	assert.Equal(t, []string{validation.MsgBlank}, verr.Fields["hashtags"])

	_, err = svc.CreatePost(ctx, u.ID, PostInput{
		Title:    strings.Repeat("t", 256),
		Content:  "c",
		Hashtags: []string{strings.Repeat("x", 101)},
	})
	verr, ok = validation.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Ensure this field has no more than 255 characters."}, verr.Fields["title"])
	assert.Equal(t, []string{"Ensure this field has no more than 100 characters."}, verr.Fields["hashtags"])

	posts, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestUpdateHashtagsEmptyClearsAbsentPreserves(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	post, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"a", "b"}})
	require.NoError(t, err)

	updated, err := svc.UpdatePost(ctx, post.ID, PostPatch{Title: ptr("new title")})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "c", updated.Content)
	assert.Equal(t, []string{"a", "b"}, updated.Hashtags)

	updated, err = svc.UpdatePost(ctx, post.ID, PostPatch{Hashtags: &[]string{}})
	require.NoError(t, err)
	assert.NotNil(t, updated.Hashtags)
	assert.Empty(t, updated.Hashtags)

	// hashtags are never deleted, even when orphaned
	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestUpdateReplacesHashtags(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	post, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"a", "b"}})
	require.NoError(t, err)

	updated, err := svc.UpdatePost(ctx, post.ID, PostPatch{Hashtags: &[]string{"B", "c", "C "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, updated.Hashtags)
}

func TestUpdateNeverTouchesAuthorOrCreatedAt(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice")

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return created }
	post, err := svc.CreatePost(ctx, alice.ID, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.True(t, created.Equal(post.CreatedAt))

	svc.now = func() time.Time { return created.Add(48 * time.Hour) }
	updated, err := svc.UpdatePost(ctx, post.ID, PostPatch{Title: ptr("x"), Content: ptr("y"), Hashtags: &[]string{"z"}})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, updated.AuthorID)
	assert.Equal(t, alice.ID, updated.Author.ID)
	assert.True(t, created.Equal(updated.CreatedAt))
}

func TestUpdatePostValidationAndNotFound(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")
	post, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"keep"}})
	require.NoError(t, err)

	_, err = svc.UpdatePost(ctx, post.ID, PostPatch{Title: ptr(""), Hashtags: &[]string{"", "x"}})
	verr, ok := validation.As(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "hashtags")

	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
	assert.Equal(t, []string{"keep"}, got.Hashtags)

	_, err = svc.UpdatePost(ctx, post.ID+100, PostPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingStore struct {
	store.Store
}

func (s failingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct {
	store.Tx
}

var errLink = errors.New("link failed")

func (failingTx) LinkPostHashtag(context.Context, int64, int64) error {
	return errLink
}

func TestFailedAssemblyLeavesNoPartialState(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(failingStore{st})
	ctx := context.Background()
	u := createUser(t, st, "alice")

	_, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"new"}})
	require.ErrorIs(t, err, errLink)

	posts, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Empty(t, posts)
	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	// an update that fails must keep the old title and links
	good := NewService(st)
	post, err := good.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"old"}})
	require.NoError(t, err)
	_, err = svc.UpdatePost(ctx, post.ID, PostPatch{Title: ptr("changed"), Hashtags: &[]string{"other"}})
	require.ErrorIs(t, err, errLink)

	got, err := good.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
	assert.Equal(t, []string{"old"}, got.Hashtags)
}

func TestListPostsHashtagFilterIgnoresCase(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	for i, tags := range [][]string{{"music"}, {"Music", "jazz"}, {"jazz"}} {
		_, err := svc.CreatePost(ctx, u.ID, PostInput{Title: fmt.Sprint(i), Content: "c", Hashtags: tags})
		require.NoError(t, err)
	}

	lower, err := svc.ListPosts(ctx, PostFilter{Hashtag: ptr("music")})
	require.NoError(t, err)
	upper, err := svc.ListPosts(ctx, PostFilter{Hashtag: ptr(" Music")})
	require.NoError(t, err)
	assert.Len(t, lower, 2)
	assert.Equal(t, lower, upper)

	all, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	blank, err := svc.ListPosts(ctx, PostFilter{Hashtag: ptr("   ")})
	require.NoError(t, err)
	assert.NotNil(t, blank)
	assert.Empty(t, blank)
}

func TestConcurrentCreatesShareNewHashtag(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		tag := "Fresh"
		if i%2 == 0 {
			tag = " fresh "
		}
		g.Go(func() error {
			_, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "race", Content: "c", Hashtags: []string{tag, "other"}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	posts, err := svc.ListPosts(ctx, PostFilter{Hashtag: ptr("fresh")})
	require.NoError(t, err)
	assert.Len(t, posts, 10)
}

func TestListPostsNewestFirstWithComments(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	older, err := svc.CreatePost(ctx, alice.ID, PostInput{Title: "older", Content: "c"})
	require.NoError(t, err)
	newer, err := svc.CreatePost(ctx, bob.ID, PostInput{Title: "newer", Content: "c"})
	require.NoError(t, err)

	first, err := svc.CreateComment(ctx, bob.ID, CommentInput{PostID: older.ID, Content: "first"})
	require.NoError(t, err)
	second, err := svc.CreateComment(ctx, alice.ID, CommentInput{PostID: older.ID, Content: "second"})
	require.NoError(t, err)

	posts, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, newer.ID, posts[0].ID)
	assert.Equal(t, older.ID, posts[1].ID)
	assert.Empty(t, posts[0].Comments)
	require.Len(t, posts[1].Comments, 2)
	assert.Equal(t, first.ID, posts[1].Comments[0].ID)
	assert.Equal(t, second.ID, posts[1].Comments[1].ID)
	assert.Equal(t, "alice", posts[1].Comments[1].Author.Username)
}

func TestComments(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	post, err := svc.CreatePost(ctx, alice.ID, PostInput{Title: "t", Content: "c"})
	require.NoError(t, err)

	c, err := svc.CreateComment(ctx, bob.ID, CommentInput{PostID: post.ID, Content: "nice"})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, c.AuthorID)
	assert.Equal(t, "bob", c.Author.Username)
	assert.Equal(t, post.ID, c.PostID)

	_, err = svc.CreateComment(ctx, bob.ID, CommentInput{PostID: post.ID + 100, Content: "lost"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateComment(ctx, bob.ID, CommentInput{PostID: post.ID, Content: " "})
	verr, ok := validation.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{validation.MsgBlank}, verr.Fields["content"])

	updated, err := svc.UpdateComment(ctx, c.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	assert.Equal(t, bob.ID, updated.AuthorID)
	assert.True(t, c.CreatedAt.Equal(updated.CreatedAt))

	_, err = svc.UpdateComment(ctx, c.ID, "")
	_, ok = validation.As(err)
	assert.True(t, ok)

	other, err := svc.CreatePost(ctx, alice.ID, PostInput{Title: "t2", Content: "c"})
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, alice.ID, CommentInput{PostID: other.ID, Content: "elsewhere"})
	require.NoError(t, err)

	onPost, err := svc.ListComments(ctx, CommentFilter{PostID: post.ID})
	require.NoError(t, err)
	assert.Len(t, onPost, 1)
	all, err := svc.ListComments(ctx, CommentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.DeleteComment(ctx, c.ID))
	_, err = svc.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeletePostCascades(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")
	post, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"stay"}})
	require.NoError(t, err)
	c, err := svc.CreateComment(ctx, u.ID, CommentInput{PostID: post.ID, Content: "bye"})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePost(ctx, post.ID))
	_, err = svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.DeletePost(ctx, post.ID), store.ErrNotFound)

	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestGetProfile(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	mine, err := svc.CreatePost(ctx, alice.ID, PostInput{Title: "mine", Content: "c", Hashtags: []string{"x"}})
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, bob.ID, PostInput{Title: "theirs", Content: "c"})
	require.NoError(t, err)

	profile, err := svc.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User.Username)
	assert.Empty(t, profile.User.PasswordHash)
	require.Len(t, profile.Posts, 1)
	assert.Equal(t, mine.ID, profile.Posts[0].ID)
	assert.Equal(t, []string{"x"}, profile.Posts[0].Hashtags)

	empty := createUser(t, st, "carol")
	profile, err = svc.GetProfile(ctx, empty.ID)
	require.NoError(t, err)
	assert.NotNil(t, profile.Posts)
	assert.Empty(t, profile.Posts)

	_, err = svc.GetProfile(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetHashtagAndStats(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	u := createUser(t, st, "alice")
	post, err := svc.CreatePost(ctx, u.ID, PostInput{Title: "t", Content: "c", Hashtags: []string{"One"}})
	require.NoError(t, err)

	tags, err := svc.ListHashtags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	h, err := svc.GetHashtag(ctx, tags[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "one", h.Name)
	_, err = svc.GetHashtag(ctx, h.ID+1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateComment(ctx, u.ID, CommentInput{PostID: post.ID, Content: "hi"})
	require.NoError(t, err)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SiteStats{Users: 1, Posts: 1, Comments: 1, Hashtags: 1}, stats)
}
