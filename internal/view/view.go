// Package view projects assembled posts, comments, hashtags and users onto
// the JSON shapes returned by the API. Field order in each struct is the
// order clients see.
package view

import (
	"time"

	"github.com/alphabot-ai/tagblog/internal/blog"
	"github.com/alphabot-ai/tagblog/internal/model"
)

type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Comment struct {
	ID        int64       `json:"id"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// CommentDetail is a comment addressed on its own, so it also names its post.
type CommentDetail struct {
	ID        int64       `json:"id"`
	Post      int64       `json:"post"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// PostList is one element of a post listing.
type PostList struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	HashtagList []string    `json:"hashtag_list"`
	Comments    []Comment   `json:"comments"`
	Author      UserSummary `json:"author"`
}

// PostDetail is a single post fetched by id.
type PostDetail struct {
	ID          int64       `json:"id"`
	Author      UserSummary `json:"author"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	Comments    []Comment   `json:"comments"`
	HashtagList []string    `json:"hashtag_list"`
}

// PostWrite acknowledges a create or update. It carries the derived
// hashtag_list, never the raw hashtags that were submitted.
type PostWrite struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	Author      UserSummary `json:"author"`
	HashtagList []string    `json:"hashtag_list"`
	Comments    []Comment   `json:"comments"`
}

type Hashtag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Profile struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Posts    []PostList `json:"posts"`
}

type Registration struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

type Session struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type Stats struct {
	Users    int64 `json:"users"`
	Posts    int64 `json:"posts"`
	Comments int64 `json:"comments"`
	Hashtags int64 `json:"hashtags"`
}

func NewUserSummary(u model.User) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

func NewComment(c model.Comment) Comment {
	return Comment{
		ID:        c.ID,
		Author:    NewUserSummary(c.Author),
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func NewCommentDetail(c model.Comment) CommentDetail {
	return CommentDetail{
		ID:        c.ID,
		Post:      c.PostID,
		Author:    NewUserSummary(c.Author),
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func NewCommentDetails(cs []model.Comment) []CommentDetail {
	out := make([]CommentDetail, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewCommentDetail(c))
	}
	return out
}

func comments(cs []model.Comment) []Comment {
	out := make([]Comment, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewComment(c))
	}
	return out
}

func hashtagList(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

func NewPostList(p model.Post) PostList {
	return PostList{
		ID:          p.ID,
		Title:       p.Title,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		HashtagList: hashtagList(p.Hashtags),
		Comments:    comments(p.Comments),
		Author:      NewUserSummary(p.Author),
	}
}

func NewPostLists(posts []model.Post) []PostList {
	out := make([]PostList, 0, len(posts))
	for _, p := range posts {
		out = append(out, NewPostList(p))
	}
	return out
}

func NewPostDetail(p model.Post) PostDetail {
	return PostDetail{
		ID:          p.ID,
		Author:      NewUserSummary(p.Author),
		Title:       p.Title,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		Comments:    comments(p.Comments),
		HashtagList: hashtagList(p.Hashtags),
	}
}

func NewPostWrite(p model.Post) PostWrite {
	return PostWrite{
		ID:          p.ID,
		Title:       p.Title,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		Author:      NewUserSummary(p.Author),
		HashtagList: hashtagList(p.Hashtags),
		Comments:    comments(p.Comments),
	}
}

func NewHashtag(h model.Hashtag) Hashtag {
	return Hashtag{ID: h.ID, Name: h.Name}
}

func NewHashtags(hs []model.Hashtag) []Hashtag {
	out := make([]Hashtag, 0, len(hs))
	for _, h := range hs {
		out = append(out, NewHashtag(h))
	}
	return out
}

func NewProfile(p blog.Profile) Profile {
	return Profile{
		ID:       p.User.ID,
		Username: p.User.Username,
		Email:    p.User.Email,
		Posts:    NewPostLists(p.Posts),
	}
}

func NewStats(s model.SiteStats) Stats {
	return Stats{Users: s.Users, Posts: s.Posts, Comments: s.Comments, Hashtags: s.Hashtags}
}
