package httpapp_test

import (
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/tagblog/internal/auth"
	"github.com/alphabot-ai/tagblog/internal/client"
	"github.com/alphabot-ai/tagblog/internal/config"
	httpapp "github.com/alphabot-ai/tagblog/internal/http"
	"github.com/alphabot-ai/tagblog/internal/rate"
	"github.com/alphabot-ai/tagblog/internal/store/sqlite"
)

func TestEndToEndServer(t *testing.T) {
	st, err := sqlite.Open("file:e2e_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.Config{
		CORSOrigins: []string{"*"},
		RateLimits:  config.RateLimits{AuthPerMinute: 1000, PostPerMinute: 1000, CommentPerMinute: 1000},
	}
	server := httpapp.NewServer(st, auth.NewService(st, bcrypt.MinCost), rate.NewMemory(), cfg, zerolog.Nop())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	httpServer := &http.Server{Handler: server}
	go func() {
		_ = httpServer.Serve(listener)
	}()
	defer httpServer.Close()

	baseURL := "http://" + listener.Addr().String()
	helper := client.NewTestHelper(baseURL)

	author, err := helper.CreateAuthenticatedClient("e2e-author")
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	reader, err := helper.CreateAuthenticatedClient("e2e-reader")
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}

	post, err := author.CreatePost("E2E Post", "Body", []string{"Music", " music", "Go"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if len(post.HashtagList) != 2 || post.HashtagList[0] != "music" || post.HashtagList[1] != "go" {
		t.Fatalf("hashtags = %v, want [music go]", post.HashtagList)
	}

	if _, err := reader.CreateComment(post.ID, "nice"); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	posts, err := client.New(baseURL).ListPosts("MUSIC")
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != post.ID {
		t.Fatalf("filtered posts = %+v", posts)
	}
	if len(posts[0].Comments) != 1 || posts[0].Comments[0].Author.Username != "e2e-reader" {
		t.Fatalf("comments = %+v", posts[0].Comments)
	}

	title := "Renamed"
	updated, err := reader.UpdatePost(post.ID, client.PostUpdate{Title: &title})
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if updated.Title != title || len(updated.HashtagList) != 2 || updated.Author.Username != "e2e-author" {
		t.Fatalf("updated = %+v", updated)
	}

	none := []string{}
	cleared, err := author.UpdatePost(post.ID, client.PostUpdate{Hashtags: &none})
	if err != nil {
		t.Fatalf("clear hashtags: %v", err)
	}
	if len(cleared.HashtagList) != 0 {
		t.Fatalf("hashtags after clear = %v", cleared.HashtagList)
	}

	anon := client.New(baseURL)
	_, err = anon.CreatePost("nope", "nope", nil)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %v", err)
	}

	if err := author.DeletePost(post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	_, err = anon.GetPost(post.ID)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted post: %v", err)
	}

	stats, err := anon.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 || stats.Posts != 0 || stats.Comments != 0 || stats.Hashtags != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}
