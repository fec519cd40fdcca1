// Package postgres implements the entity store on PostgreSQL using GORM.
//
// Row types mirror the SQLite schema: unique usernames, unique hashtag names,
// one link per (post, hashtag) pair, one token per user, and ON DELETE CASCADE
// from posts to comments and post_hashtags. Migrate creates the schema with
// AutoMigrate.
package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*queries)(nil)
)

type userRow struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"size:150;not null;uniqueIndex"`
	Email        string `gorm:"size:254;not null;default:''"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type postRow struct {
	ID        int64     `gorm:"primaryKey"`
	AuthorID  int64     `gorm:"not null;index"`
	Author    userRow   `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Title     string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (postRow) TableName() string { return "posts" }

type commentRow struct {
	ID        int64   `gorm:"primaryKey"`
	PostID    int64   `gorm:"not null;index"`
	Post      postRow `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	AuthorID  int64   `gorm:"not null"`
	Author    userRow `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Content   string  `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (commentRow) TableName() string { return "comments" }

type hashtagRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:100;not null;uniqueIndex"`
}

func (hashtagRow) TableName() string { return "hashtags" }

type postHashtagRow struct {
	ID        int64      `gorm:"primaryKey"`
	PostID    int64      `gorm:"not null;uniqueIndex:idx_post_hashtags_unique,priority:1"`
	Post      postRow    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	HashtagID int64      `gorm:"not null;uniqueIndex:idx_post_hashtags_unique,priority:2;index"`
	Hashtag   hashtagRow `gorm:"foreignKey:HashtagID;constraint:OnDelete:CASCADE"`
}

func (postHashtagRow) TableName() string { return "post_hashtags" }

type tokenRow struct {
	Key       string  `gorm:"column:token;primaryKey;size:64"`
	UserID    int64   `gorm:"not null;uniqueIndex"`
	User      userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

func (tokenRow) TableName() string { return "auth_tokens" }

type Store struct {
	*queries
	db *gorm.DB
}

type queries struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{queries: &queries{db: db}, db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&userRow{},
		&postRow{},
		&commentRow{},
		&hashtagRow{},
		&postHashtagRow{},
		&tokenRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&queries{db: tx})
	})
}

func (q *queries) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	row := userRow{
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, store.ErrDuplicateUsername
		}
		return 0, err
	}
	return row.ID, nil
}

func (q *queries) GetUser(ctx context.Context, id int64) (model.User, error) {
	var row userRow
	if err := q.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.User{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var row userRow
	if err := q.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return model.User{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) GetOrCreateToken(ctx context.Context, token model.Token) (model.Token, error) {
	row := tokenRow{Key: token.Key, UserID: token.UserID, CreatedAt: token.CreatedAt}
	err := q.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return model.Token{}, err
	}
	return q.GetTokenByUser(ctx, token.UserID)
}

func (q *queries) GetToken(ctx context.Context, key string) (model.Token, error) {
	var row tokenRow
	if err := q.db.WithContext(ctx).Where("token = ?", key).First(&row).Error; err != nil {
		return model.Token{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) GetTokenByUser(ctx context.Context, userID int64) (model.Token, error) {
	var row tokenRow
	if err := q.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return model.Token{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	row := postRow{
		AuthorID:  post.AuthorID,
		Title:     post.Title,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
	}
	if err := q.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (q *queries) GetPost(ctx context.Context, id int64) (model.Post, error) {
	var row postRow
	if err := q.db.WithContext(ctx).Joins("Author").First(&row, "posts.id = ?", id).Error; err != nil {
		return model.Post{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	tx := q.db.WithContext(ctx).Joins("Author")
	if opts.Hashtag != "" {
		tx = tx.Where(`EXISTS (
	SELECT 1 FROM post_hashtags ph
	JOIN hashtags h ON h.id = ph.hashtag_id
	WHERE ph.post_id = posts.id AND h.name = ?
)`, opts.Hashtag)
	}
	if opts.AuthorID > 0 {
		tx = tx.Where("posts.author_id = ?", opts.AuthorID)
	}
	var rows []postRow
	if err := tx.Order("posts.created_at DESC").Order("posts.id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	posts := make([]model.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.toModel())
	}
	return posts, nil
}

func (q *queries) UpdatePost(ctx context.Context, id int64, title, content string) error {
	res := q.db.WithContext(ctx).Model(&postRow{}).Where("id = ?", id).
		Updates(map[string]any{"title": title, "content": content})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) DeletePost(ctx context.Context, id int64) error {
	res := q.db.WithContext(ctx).Delete(&postRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetOrCreateHashtag inserts name unless it exists and then reads the row
// back. Under READ COMMITTED a concurrent inserter blocks the conflict check
// until it commits, so the follow-up read always finds the winning row.
func (q *queries) GetOrCreateHashtag(ctx context.Context, name string) (model.Hashtag, error) {
	row := hashtagRow{Name: name}
	err := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return model.Hashtag{}, err
	}
	if row.ID == 0 {
		if err := q.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
			return model.Hashtag{}, translate(err)
		}
	}
	return model.Hashtag{ID: row.ID, Name: row.Name}, nil
}

func (q *queries) GetHashtag(ctx context.Context, id int64) (model.Hashtag, error) {
	var row hashtagRow
	if err := q.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.Hashtag{}, translate(err)
	}
	return model.Hashtag{ID: row.ID, Name: row.Name}, nil
}

func (q *queries) ListHashtags(ctx context.Context) ([]model.Hashtag, error) {
	var rows []hashtagRow
	if err := q.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	tags := make([]model.Hashtag, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, model.Hashtag{ID: row.ID, Name: row.Name})
	}
	return tags, nil
}

func (q *queries) LinkPostHashtag(ctx context.Context, postID, hashtagID int64) error {
	row := postHashtagRow{PostID: postID, HashtagID: hashtagID}
	return q.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "hashtag_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

func (q *queries) ClearPostHashtags(ctx context.Context, postID int64) error {
	return q.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&postHashtagRow{}).Error
}

func (q *queries) HashtagNamesByPost(ctx context.Context, postIDs []int64) (map[int64][]string, error) {
	names := make(map[int64][]string, len(postIDs))
	for chunk := range slices.Chunk(postIDs, store.IDBatchSize) {
		var rows []struct {
			PostID int64
			Name   string
		}
		err := q.db.WithContext(ctx).
			Table("post_hashtags").
			Select("post_hashtags.post_id, hashtags.name").
			Joins("JOIN hashtags ON hashtags.id = post_hashtags.hashtag_id").
			Where("post_hashtags.post_id IN ?", chunk).
			Order("post_hashtags.id").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			names[r.PostID] = append(names[r.PostID], r.Name)
		}
	}
	return names, nil
}

func (q *queries) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	row := commentRow{
		PostID:    comment.PostID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}
	if err := q.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return row.ID, nil
}

func (q *queries) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	var row commentRow
	if err := q.db.WithContext(ctx).Joins("Author").First(&row, "comments.id = ?", id).Error; err != nil {
		return model.Comment{}, translate(err)
	}
	return row.toModel(), nil
}

func (q *queries) ListComments(ctx context.Context, opts store.CommentListOpts) ([]model.Comment, error) {
	comments := []model.Comment{}
	if opts.PostIDs == nil {
		return q.listComments(comments, q.db.WithContext(ctx))
	}
	var err error
	for chunk := range slices.Chunk(opts.PostIDs, store.IDBatchSize) {
		comments, err = q.listComments(comments, q.db.WithContext(ctx).Where("comments.post_id IN ?", chunk))
		if err != nil {
			return nil, err
		}
	}
	slices.SortFunc(comments, func(a, b model.Comment) int { return cmp.Compare(a.ID, b.ID) })
	return comments, nil
}

func (q *queries) listComments(dst []model.Comment, tx *gorm.DB) ([]model.Comment, error) {
	var rows []commentRow
	if err := tx.Joins("Author").Order("comments.id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		dst = append(dst, row.toModel())
	}
	return dst, nil
}

func (q *queries) UpdateComment(ctx context.Context, id int64, content string) error {
	res := q.db.WithContext(ctx).Model(&commentRow{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteComment(ctx context.Context, id int64) error {
	res := q.db.WithContext(ctx).Delete(&commentRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	err := q.db.WithContext(ctx).Raw(`
SELECT
	(SELECT COUNT(*) FROM users) AS users,
	(SELECT COUNT(*) FROM posts) AS posts,
	(SELECT COUNT(*) FROM comments) AS comments,
	(SELECT COUNT(*) FROM hashtags) AS hashtags
`).Scan(&stats).Error
	return stats, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (r tokenRow) toModel() model.Token {
	return model.Token{Key: r.Key, UserID: r.UserID, CreatedAt: r.CreatedAt.UTC()}
}

func (r postRow) toModel() model.Post {
	author := r.Author.toModel()
	author.PasswordHash = ""
	return model.Post{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Author:    author,
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r commentRow) toModel() model.Comment {
	author := r.Author.toModel()
	author.PasswordHash = ""
	return model.Comment{
		ID:        r.ID,
		PostID:    r.PostID,
		AuthorID:  r.AuthorID,
		Author:    author,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
