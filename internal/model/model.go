package model

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Post is the aggregate read back from the store. Author, Hashtags and
// Comments are filled in by the blog service when a post is loaded.
type Post struct {
	ID        int64
	AuthorID  int64
	Author    User
	Title     string
	Content   string
	CreatedAt time.Time
	Hashtags  []string
	Comments  []Comment
}

type Comment struct {
	ID        int64
	PostID    int64
	AuthorID  int64
	Author    User
	Content   string
	CreatedAt time.Time
}

type Hashtag struct {
	ID   int64
	Name string
}

type PostHashtag struct {
	ID        int64
	PostID    int64
	HashtagID int64
}

type Token struct {
	Key       string
	UserID    int64
	CreatedAt time.Time
}

type SiteStats struct {
	Users    int64
	Posts    int64
	Comments int64
	Hashtags int64
}
