package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*queries)(nil)
)

type Store struct {
	*queries
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx so every query below
// runs unchanged inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer. One connection turns concurrent
	// transactions into a queue instead of SQLITE_BUSY/LOCKED failures.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{queries: &queries{q: db}, db: db}, nil
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying handle for maintenance tasks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL,
	author_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
	FOREIGN KEY(author_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);

CREATE TABLE IF NOT EXISTS hashtags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS post_hashtags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL,
	hashtag_id INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
	FOREIGN KEY(hashtag_id) REFERENCES hashtags(id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_post_hashtags_unique ON post_hashtags(post_id, hashtag_id);
CREATE INDEX IF NOT EXISTS idx_post_hashtags_hashtag_id ON post_hashtags(hashtag_id);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
`,
	// Future migrations go here:
	// Migration 2: `ALTER TABLE ...`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *queries) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO users (username, email, password_hash, created_at)
VALUES (?, ?, ?, ?)
`, user.Username, user.Email, user.PasswordHash, user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateUsername
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *queries) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE username = ?
`, username)
	return scanUser(row)
}

func (s *queries) GetOrCreateToken(ctx context.Context, token model.Token) (model.Token, error) {
	if _, err := s.q.ExecContext(ctx, `
INSERT INTO auth_tokens (token, user_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id) DO NOTHING
`, token.Key, token.UserID, token.CreatedAt.Unix()); err != nil {
		return model.Token{}, err
	}
	return s.GetTokenByUser(ctx, token.UserID)
}

func (s *queries) GetToken(ctx context.Context, key string) (model.Token, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT token, user_id, created_at
FROM auth_tokens
WHERE token = ?
`, key)
	return scanToken(row)
}

func (s *queries) GetTokenByUser(ctx context.Context, userID int64) (model.Token, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT token, user_id, created_at
FROM auth_tokens
WHERE user_id = ?
`, userID)
	return scanToken(row)
}

func (s *queries) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO posts (author_id, title, content, created_at)
VALUES (?, ?, ?, ?)
`, post.AuthorID, post.Title, post.Content, post.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const postColumns = `p.id, p.author_id, p.title, p.content, p.created_at, u.id, u.username, u.email, u.created_at`

func (s *queries) GetPost(ctx context.Context, id int64) (model.Post, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
JOIN users u ON u.id = p.author_id
WHERE p.id = ?
`, id)
	return scanPost(row)
}

func (s *queries) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	var where []string
	var args []any
	if opts.Hashtag != "" {
		where = append(where, `EXISTS (
	SELECT 1 FROM post_hashtags ph
	JOIN hashtags h ON h.id = ph.hashtag_id
	WHERE ph.post_id = p.id AND h.name = ?
)`)
		args = append(args, opts.Hashtag)
	}
	if opts.AuthorID > 0 {
		where = append(where, "p.author_id = ?")
		args = append(args, opts.AuthorID)
	}
	query := `
SELECT ` + postColumns + `
FROM posts p
JOIN users u ON u.id = p.author_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY p.created_at DESC, p.id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *queries) UpdatePost(ctx context.Context, id int64, title, content string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE posts SET title = ?, content = ? WHERE id = ?`, title, content, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *queries) DeletePost(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *queries) GetOrCreateHashtag(ctx context.Context, name string) (model.Hashtag, error) {
	if _, err := s.q.ExecContext(ctx, `
INSERT INTO hashtags (name) VALUES (?)
ON CONFLICT(name) DO NOTHING
`, name); err != nil {
		return model.Hashtag{}, err
	}
	var h model.Hashtag
	err := s.q.QueryRowContext(ctx, `SELECT id, name FROM hashtags WHERE name = ?`, name).Scan(&h.ID, &h.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Hashtag{}, store.ErrNotFound
		}
		return model.Hashtag{}, err
	}
	return h, nil
}

func (s *queries) GetHashtag(ctx context.Context, id int64) (model.Hashtag, error) {
	var h model.Hashtag
	err := s.q.QueryRowContext(ctx, `SELECT id, name FROM hashtags WHERE id = ?`, id).Scan(&h.ID, &h.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Hashtag{}, store.ErrNotFound
		}
		return model.Hashtag{}, err
	}
	return h, nil
}

func (s *queries) ListHashtags(ctx context.Context) ([]model.Hashtag, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name FROM hashtags ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []model.Hashtag{}
	for rows.Next() {
		var h model.Hashtag
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, err
		}
		tags = append(tags, h)
	}
	return tags, rows.Err()
}

func (s *queries) LinkPostHashtag(ctx context.Context, postID, hashtagID int64) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO post_hashtags (post_id, hashtag_id) VALUES (?, ?)
ON CONFLICT(post_id, hashtag_id) DO NOTHING
`, postID, hashtagID)
	return err
}

func (s *queries) ClearPostHashtags(ctx context.Context, postID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM post_hashtags WHERE post_id = ?`, postID)
	return err
}

func (s *queries) HashtagNamesByPost(ctx context.Context, postIDs []int64) (map[int64][]string, error) {
	names := make(map[int64][]string, len(postIDs))
	for chunk := range slices.Chunk(postIDs, store.IDBatchSize) {
		if err := s.hashtagNamesChunk(ctx, chunk, names); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (s *queries) hashtagNamesChunk(ctx context.Context, postIDs []int64, names map[int64][]string) error {
	rows, err := s.q.QueryContext(ctx, `
SELECT ph.post_id, h.name
FROM post_hashtags ph
JOIN hashtags h ON h.id = ph.hashtag_id
WHERE ph.post_id IN (`+placeholders(len(postIDs))+`)
ORDER BY ph.id
`, int64Args(postIDs)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var name string
		if err := rows.Scan(&postID, &name); err != nil {
			return err
		}
		names[postID] = append(names[postID], name)
	}
	return rows.Err()
}

func (s *queries) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
INSERT INTO comments (post_id, author_id, content, created_at)
VALUES (?, ?, ?, ?)
`, comment.PostID, comment.AuthorID, comment.Content, comment.CreatedAt.Unix())
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return res.LastInsertId()
}

const commentColumns = `c.id, c.post_id, c.author_id, c.content, c.created_at, u.id, u.username, u.email, u.created_at`

func (s *queries) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := s.q.QueryRowContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.id = ?
`, id)
	return scanComment(row)
}

func (s *queries) ListComments(ctx context.Context, opts store.CommentListOpts) ([]model.Comment, error) {
	comments := []model.Comment{}
	if opts.PostIDs == nil {
		return s.listComments(ctx, comments, "", nil)
	}
	var err error
	for chunk := range slices.Chunk(opts.PostIDs, store.IDBatchSize) {
		where := "\nWHERE c.post_id IN (" + placeholders(len(chunk)) + ")"
		comments, err = s.listComments(ctx, comments, where, int64Args(chunk))
		if err != nil {
			return nil, err
		}
	}
	// Chunks each come back in id order; restore it across chunks.
	slices.SortFunc(comments, func(a, b model.Comment) int { return cmp.Compare(a.ID, b.ID) })
	return comments, nil
}

func (s *queries) listComments(ctx context.Context, dst []model.Comment, where string, args []any) ([]model.Comment, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
JOIN users u ON u.id = c.author_id`+where+`
ORDER BY c.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		dst = append(dst, c)
	}
	return dst, rows.Err()
}

func (s *queries) UpdateComment(ctx context.Context, id int64, content string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE comments SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *queries) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *queries) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	row := s.q.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM posts),
	(SELECT COUNT(*) FROM comments),
	(SELECT COUNT(*) FROM hashtags)
`)
	if err := row.Scan(&stats.Users, &stats.Posts, &stats.Comments, &stats.Hashtags); err != nil {
		return stats, err
	}
	return stats, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = unixTime(created)
	return u, nil
}

func scanToken(row scanner) (model.Token, error) {
	var t model.Token
	var created int64
	if err := row.Scan(&t.Key, &t.UserID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Token{}, store.ErrNotFound
		}
		return model.Token{}, err
	}
	t.CreatedAt = unixTime(created)
	return t, nil
}

func scanPost(row scanner) (model.Post, error) {
	var p model.Post
	var created, authorCreated int64
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &created,
		&p.Author.ID, &p.Author.Username, &p.Author.Email, &authorCreated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	p.CreatedAt = unixTime(created)
	p.Author.CreatedAt = unixTime(authorCreated)
	return p, nil
}

func scanComment(row scanner) (model.Comment, error) {
	var c model.Comment
	var created, authorCreated int64
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &created,
		&c.Author.ID, &c.Author.Username, &c.Author.Email, &authorCreated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, store.ErrNotFound
		}
		return model.Comment{}, err
	}
	c.CreatedAt = unixTime(created)
	c.Author.CreatedAt = unixTime(authorCreated)
	return c, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func requireAffected(res sql.Result) error {
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
