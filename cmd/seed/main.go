package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/tagblog/internal/client"
)

var authors = []string{"ada", "grace", "linus", "barbara", "ken"}

var posts = []struct {
	title   string
	content string
	tags    []string
}{
	{"Hello, tagblog", "First post on the new blog.", []string{"Intro", "meta"}},
	{"Why I keep a reading list", "Notes on the books that stuck.", []string{"books", "Reading"}},
	{"Sourdough, week three", "The starter finally doubled overnight.", []string{"baking", "food"}},
	{"Notes from a jazz night", "Small club, loud trumpet, great evening.", []string{"music", "Jazz", "MUSIC"}},
	{"Learning Go generics", "Constraints make more sense after writing a few.", []string{"go", "programming"}},
	{"A week without a phone", "Less scrolling, more walking.", nil},
	{"Favourite albums of the year", "A short and opinionated list.", []string{" music ", "lists"}},
	{"Refactoring a weekend project", "Deleting code is the best part.", []string{"programming", "Go"}},
	{"Hiking the coast path", "Forty kilometres and one blister.", []string{"outdoors", "travel"}},
	{"On writing short posts", "This one is short.", []string{"meta", "writing"}},
}

var comments = []string{
	"Great post!",
	"I disagree, but it was a good read.",
	"Could you share more details?",
	"Bookmarked for later.",
	"This reminded me of something I read last year.",
	"Thanks for writing this up.",
	"Would love a follow-up.",
	"Same experience here.",
}

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "Fill a running tagblog server with sample users, posts and comments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "tagblog server URL"},
			&cli.IntFlag{Name: "users", Value: len(authors), Usage: "number of users to create"},
			&cli.IntFlag{Name: "posts", Value: len(posts), Usage: "number of posts to create"},
		},
		Action: seed,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seed(c *cli.Context) error {
	baseURL := c.String("url")
	log.Printf("Seeding %s...\n", baseURL)

	suffix := time.Now().Format("150405")
	var clients []*client.Client
	var names []string
	for i := 0; i < c.Int("users"); i++ {
		name := fmt.Sprintf("%s%d_%s", authors[i%len(authors)], i, suffix)
		api := client.New(baseURL)
		if _, err := api.Register(name, name+"@example.com", "password123"); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		log.Printf("✓ Registered user: %s", name)
		clients = append(clients, api)
		names = append(names, name)
	}
	if len(clients) == 0 {
		return fmt.Errorf("--users must be at least 1")
	}

	var postIDs []int64
	for i := 0; i < c.Int("posts"); i++ {
		p := posts[i%len(posts)]
		idx := rand.Intn(len(clients))
		post, err := clients[idx].CreatePost(p.title, p.content, p.tags)
		if err != nil {
			log.Printf("✗ Failed to create post: %v", err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Printf("✓ Post #%d: %s (by %s) %v", post.ID, post.Title, names[idx], post.HashtagList)

		// Spread out created_at so ordering is visible.
		time.Sleep(50 * time.Millisecond)
	}

	var commentCount int
	for _, postID := range postIDs {
		n := rand.Intn(4)
		for i := 0; i < n; i++ {
			idx := rand.Intn(len(clients))
			comment, err := clients[idx].CreateComment(postID, comments[rand.Intn(len(comments))])
			if err != nil {
				log.Printf("✗ Failed to comment: %v", err)
				continue
			}
			commentCount++
			log.Printf("  ↳ Comment #%d on post #%d (by %s)", comment.ID, postID, names[idx])
		}
	}

	stats, err := client.New(baseURL).Stats()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:    %d (total %d)\n", len(clients), stats.Users)
	fmt.Printf("Posts:    %d (total %d)\n", len(postIDs), stats.Posts)
	fmt.Printf("Comments: %d (total %d)\n", commentCount, stats.Comments)
	fmt.Printf("Hashtags: %d\n", stats.Hashtags)
	fmt.Println("\nView at:", baseURL)
	return nil
}
