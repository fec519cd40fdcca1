package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/tagblog/internal/client"
)

const defaultBaseURL = "http://localhost:8080"

// CLIConfig holds one account's client settings persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
	Token    string `json:"token"`
}

func cmdRegister(c *cli.Context) error {
	api := client.New(baseURL(c, CLIConfig{}))
	reg, err := api.Register(c.String("username"), c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	cfg := CLIConfig{BaseURL: api.BaseURL, Username: reg.Username, UserID: reg.UserID, Token: reg.Token}
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Registered '%s' (user %d)\n", reg.Username, reg.UserID)
	fmt.Println("\nReady to post! Example:")
	fmt.Println(`  tagblog post --title "Hello" --content "My first post" --tags intro,hello`)
	return nil
}

func cmdLogin(c *cli.Context) error {
	saved, _ := loadCLIConfig()
	api := client.New(baseURL(c, saved))
	sess, err := api.Login(c.String("username"), c.String("password"))
	if err != nil {
		return err
	}
	cfg := CLIConfig{BaseURL: api.BaseURL, Username: sess.Username, UserID: sess.UserID, Token: sess.Token}
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Logged in as '%s'\n", sess.Username)
	return nil
}

func cmdPost(c *cli.Context) error {
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	post, err := api.CreatePost(c.String("title"), c.String("content"), splitTags(c.StringSlice("tags")))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Posted #%d: %s\n", post.ID, post.Title)
	if len(post.HashtagList) > 0 {
		fmt.Printf("  #%s\n", strings.Join(post.HashtagList, " #"))
	}
	return nil
}

func cmdComment(c *cli.Context) error {
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	comment, err := api.CreateComment(c.Int64("post"), c.String("text"))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Comment #%d on post #%d\n", comment.ID, comment.Post)
	return nil
}

func cmdDelete(c *cli.Context) error {
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	if err := api.DeletePost(c.Int64("post")); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted post #%d\n", c.Int64("post"))
	return nil
}

func cmdRead(c *cli.Context) error {
	saved, _ := loadCLIConfig()
	api := client.New(baseURL(c, saved))

	if id := c.Int64("post"); id != 0 {
		post, err := api.GetPost(id)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", post.Title)
		fmt.Printf("  by %s | %s\n", post.Author.Username, post.CreatedAt.Format("2006-01-02 15:04"))
		if len(post.HashtagList) > 0 {
			fmt.Printf("  #%s\n", strings.Join(post.HashtagList, " #"))
		}
		fmt.Printf("\n  %s\n", post.Content)
		if len(post.Comments) > 0 {
			fmt.Printf("\n  --- Comments (%d) ---\n", len(post.Comments))
			for _, comment := range post.Comments {
				fmt.Printf("  [%d] %s: %s\n", comment.ID, comment.Author.Username, comment.Content)
			}
		}
		return nil
	}

	posts, err := api.ListPosts(c.String("hashtag"))
	if err != nil {
		return err
	}
	heading := "latest"
	if tag := c.String("hashtag"); tag != "" {
		heading = "#" + tag
	}
	fmt.Printf("\ntagblog (%s)\n\n", heading)
	for i, p := range posts {
		fmt.Printf("%d. %s\n", i+1, p.Title)
		fmt.Printf("   by %s | %d comments | #%d\n\n", p.Author.Username, len(p.Comments), p.ID)
	}
	return nil
}

func cmdStatus(c *cli.Context) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Println("Status: Not logged in")
		fmt.Println("\nRun: tagblog register --username <name> --password <password>")
		return nil
	}
	fmt.Printf("User:   %s (%d)\n", cfg.Username, cfg.UserID)
	fmt.Printf("Server: %s\n", cfg.BaseURL)
	if cfg.Token == "" {
		fmt.Println("Token:  none")
		fmt.Println("\nRun: tagblog login")
	} else {
		fmt.Printf("Token:  %s...\n", cfg.Token[:min(8, len(cfg.Token))])
	}
	return nil
}

// splitTags accepts both repeated flags and comma-separated values.
func splitTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func baseURL(c *cli.Context, saved CLIConfig) string {
	if u := c.String("url"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	if saved.BaseURL != "" {
		return saved.BaseURL
	}
	return defaultBaseURL
}

// ============================================================================
// HELPERS
// ============================================================================

func configDir() string {
	if dir := os.Getenv("TAGBLOG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tagblog")
}

func cliConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not logged in")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(configDir(), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cliConfigPath(), data, 0o600)
}

func loadAuthenticatedClient(c *cli.Context) (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("not authenticated - run 'tagblog login'")
	}
	api := client.New(baseURL(c, cfg))
	api.Token = cfg.Token
	return api, nil
}
