package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/tagblog/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("duplicate username")
)

// IDBatchSize caps how many ids a backend binds into one IN list. Longer
// lists are split across queries so they stay under driver parameter limits.
const IDBatchSize = 500

type PostListOpts struct {
	// Hashtag restricts the list to posts linked to this canonical name.
	Hashtag  string
	AuthorID int64
}

type CommentListOpts struct {
	// PostIDs restricts the list to comments on these posts. Nil means all.
	PostIDs []int64
}

// Store is the durable entity store. Reads and single-row writes go through
// it directly; multi-row writes that must be atomic go through WithTx.
type Store interface {
	UserStore
	PostStore
	CommentStore
	HashtagStore
	TokenStore
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write surface available inside a transaction. A non-nil error
// from the WithTx callback rolls every change back.
type Tx interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetOrCreateToken(ctx context.Context, token model.Token) (model.Token, error)
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) error
	GetOrCreateHashtag(ctx context.Context, name string) (model.Hashtag, error)
	LinkPostHashtag(ctx context.Context, postID, hashtagID int64) error
	ClearPostHashtags(ctx context.Context, postID int64) error
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
}

type PostStore interface {
	GetPost(ctx context.Context, id int64) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
	DeletePost(ctx context.Context, id int64) error
	// HashtagNamesByPost returns each post's hashtag names in link order.
	HashtagNamesByPost(ctx context.Context, postIDs []int64) (map[int64][]string, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListComments(ctx context.Context, opts CommentListOpts) ([]model.Comment, error)
	UpdateComment(ctx context.Context, id int64, content string) error
	DeleteComment(ctx context.Context, id int64) error
}

type HashtagStore interface {
	GetHashtag(ctx context.Context, id int64) (model.Hashtag, error)
	ListHashtags(ctx context.Context) ([]model.Hashtag, error)
}

type TokenStore interface {
	GetToken(ctx context.Context, key string) (model.Token, error)
	GetTokenByUser(ctx context.Context, userID int64) (model.Token, error)
	GetOrCreateToken(ctx context.Context, token model.Token) (model.Token, error)
}
