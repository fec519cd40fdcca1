// Package blog assembles posts with their hashtags and comments.
//
// Writes that touch a post and its hashtag links run in one store
// transaction, so readers never see a post without its intended hashtags.
// The caller's identity is always passed in explicitly as authorID.
package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alphabot-ai/tagblog/internal/hashtag"
	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/validation"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// PostInput is the payload for a new post. Hashtags are raw user strings.
type PostInput struct {
	Title    string   `json:"title" validate:"notblank,max=255"`
	Content  string   `json:"content" validate:"notblank"`
	Hashtags []string `json:"hashtags"`
}

// PostPatch changes a post. Nil fields keep their current value. A nil
// Hashtags leaves the links alone; a non-nil empty slice removes them all.
type PostPatch struct {
	Title    *string   `json:"title" validate:"omitnil,notblank,max=255"`
	Content  *string   `json:"content" validate:"omitnil,notblank"`
	Hashtags *[]string `json:"hashtags"`
}

type PostFilter struct {
	// Hashtag is matched against canonical names, so any casing works. Nil
	// means no hashtag filter; a blank name matches nothing.
	Hashtag  *string
	AuthorID int64
}

type CommentInput struct {
	PostID  int64  `json:"post" validate:"gt=0"`
	Content string `json:"content" validate:"notblank"`
}

type CommentFilter struct {
	PostID int64
}

// Profile is a user together with the posts they authored, newest first.
type Profile struct {
	User  model.User
	Posts []model.Post
}

func (s *Service) CreatePost(ctx context.Context, authorID int64, in PostInput) (model.Post, error) {
	names, err := checkPost(in, in.Hashtags)
	if err != nil {
		return model.Post{}, err
	}

	var id int64
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		post := model.Post{
			AuthorID:  authorID,
			Title:     in.Title,
			Content:   in.Content,
			CreatedAt: s.now().UTC(),
		}
		id, err = tx.CreatePost(ctx, &post)
		if err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		return linkHashtags(ctx, tx, id, names)
	})
	if err != nil {
		return model.Post{}, err
	}
	return s.GetPost(ctx, id)
}

func (s *Service) UpdatePost(ctx context.Context, postID int64, patch PostPatch) (model.Post, error) {
	var raw []string
	if patch.Hashtags != nil {
		raw = *patch.Hashtags
	}
	names, err := checkPost(patch, raw)
	if err != nil {
		return model.Post{}, err
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		title, content := current.Title, current.Content
		if patch.Title != nil {
			title = *patch.Title
		}
		if patch.Content != nil {
			content = *patch.Content
		}
		if err := tx.UpdatePost(ctx, postID, title, content); err != nil {
			return err
		}
		if patch.Hashtags == nil {
			return nil
		}
		if err := tx.ClearPostHashtags(ctx, postID); err != nil {
			return fmt.Errorf("clear hashtags: %w", err)
		}
		return linkHashtags(ctx, tx, postID, names)
	})
	if err != nil {
		return model.Post{}, err
	}
	return s.GetPost(ctx, postID)
}

// checkPost validates the scalar fields of in and canonicalizes raw tags,
// reporting every problem in one error.
func checkPost(in any, raw []string) ([]string, error) {
	verr := &validation.Error{}
	if err := validation.Struct(in); err != nil {
		fe, ok := validation.As(err)
		if !ok {
			return nil, err
		}
		verr.Merge(fe)
	}
	names, err := hashtag.NormalizeAll(raw)
	if err != nil {
		verr.Add("hashtags", hashtagMessage(err))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return names, nil
}

func hashtagMessage(err error) string {
	switch {
	case errors.Is(err, hashtag.ErrEmpty):
		return validation.MsgBlank
	case errors.Is(err, hashtag.ErrTooLong):
		return fmt.Sprintf("Ensure this field has no more than %d characters.", hashtag.MaxLen)
	default:
		return err.Error()
	}
}

func linkHashtags(ctx context.Context, tx store.Tx, postID int64, names []string) error {
	for _, name := range names {
		h, err := tx.GetOrCreateHashtag(ctx, name)
		if err != nil {
			return fmt.Errorf("hashtag %q: %w", name, err)
		}
		if err := tx.LinkPostHashtag(ctx, postID, h.ID); err != nil {
			return fmt.Errorf("link hashtag %q: %w", name, err)
		}
	}
	return nil
}

func (s *Service) GetPost(ctx context.Context, id int64) (model.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, err
	}
	posts := []model.Post{post}
	if err := s.hydrate(ctx, posts); err != nil {
		return model.Post{}, err
	}
	return posts[0], nil
}

func (s *Service) ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, error) {
	opts := store.PostListOpts{AuthorID: filter.AuthorID}
	if filter.Hashtag != nil {
		opts.Hashtag = hashtag.Filter(*filter.Hashtag)
		if opts.Hashtag == "" {
			return []model.Post{}, nil
		}
	}
	posts, err := s.store.ListPosts(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Service) DeletePost(ctx context.Context, id int64) error {
	return s.store.DeletePost(ctx, id)
}

// hydrate fills in hashtag names and comments for posts in place. The store
// batches the post ids, so the query count grows with len(posts) only every
// store.IDBatchSize posts.
func (s *Service) hydrate(ctx context.Context, posts []model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	names, err := s.store.HashtagNamesByPost(ctx, ids)
	if err != nil {
		return fmt.Errorf("load hashtags: %w", err)
	}
	comments, err := s.store.ListComments(ctx, store.CommentListOpts{PostIDs: ids})
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	byPost := make(map[int64][]model.Comment, len(posts))
	for _, c := range comments {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	for i := range posts {
		posts[i].Hashtags = names[posts[i].ID]
		if posts[i].Hashtags == nil {
			posts[i].Hashtags = []string{}
		}
		posts[i].Comments = byPost[posts[i].ID]
		if posts[i].Comments == nil {
			posts[i].Comments = []model.Comment{}
		}
	}
	return nil
}

func (s *Service) CreateComment(ctx context.Context, authorID int64, in CommentInput) (model.Comment, error) {
	if err := validation.Struct(in); err != nil {
		return model.Comment{}, err
	}
	if _, err := s.store.GetPost(ctx, in.PostID); err != nil {
		return model.Comment{}, err
	}
	comment := model.Comment{
		PostID:    in.PostID,
		AuthorID:  authorID,
		Content:   in.Content,
		CreatedAt: s.now().UTC(),
	}
	id, err := s.store.CreateComment(ctx, &comment)
	if err != nil {
		return model.Comment{}, err
	}
	return s.store.GetComment(ctx, id)
}

func (s *Service) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	return s.store.GetComment(ctx, id)
}

func (s *Service) ListComments(ctx context.Context, filter CommentFilter) ([]model.Comment, error) {
	var opts store.CommentListOpts
	if filter.PostID > 0 {
		opts.PostIDs = []int64{filter.PostID}
	}
	return s.store.ListComments(ctx, opts)
}

// UpdateComment replaces the content of a comment. Post, author and
// created_at never change.
func (s *Service) UpdateComment(ctx context.Context, id int64, content string) (model.Comment, error) {
	in := struct {
		Content string `json:"content" validate:"notblank"`
	}{content}
	if err := validation.Struct(in); err != nil {
		return model.Comment{}, err
	}
	if err := s.store.UpdateComment(ctx, id, content); err != nil {
		return model.Comment{}, err
	}
	return s.store.GetComment(ctx, id)
}

func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	return s.store.DeleteComment(ctx, id)
}

func (s *Service) ListHashtags(ctx context.Context) ([]model.Hashtag, error) {
	return s.store.ListHashtags(ctx)
}

func (s *Service) GetHashtag(ctx context.Context, id int64) (model.Hashtag, error) {
	return s.store.GetHashtag(ctx, id)
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	posts, err := s.ListPosts(ctx, PostFilter{AuthorID: userID})
	if err != nil {
		return Profile{}, err
	}
	user.PasswordHash = ""
	return Profile{User: user, Posts: posts}, nil
}

func (s *Service) Stats(ctx context.Context) (model.SiteStats, error) {
	return s.store.GetSiteStats(ctx)
}
