package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "v0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func urlFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "url",
		Usage:   "tagblog server URL (defaults to the saved one)",
		EnvVars: []string{"TAGBLOG_URL"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "tagblog",
		Usage:   "Blog API with posts, comments and hashtags",
		Version: version,
		// No command starts the server.
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "Start the API server",
				Action:  runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the database schema and exit",
				Action: runMigrate,
			},
			{
				Name:  "createuser",
				Usage: "Create a user directly in the database and print its token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"TAGBLOG_PASSWORD"}},
				},
				Action: runCreateUser,
			},
			{
				Name:  "register",
				Usage: "Register an account and save its token",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"TAGBLOG_PASSWORD"}},
				},
				Action: cmdRegister,
			},
			{
				Name:    "login",
				Aliases: []string{"auth"},
				Usage:   "Log in and save the token",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"TAGBLOG_PASSWORD"}},
				},
				Action: cmdLogin,
			},
			{
				Name:  "post",
				Usage: "Publish a post",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "content", Aliases: []string{"text"}, Required: true},
					&cli.StringSliceFlag{Name: "tags", Usage: "comma-separated hashtags"},
				},
				Action: cmdPost,
			},
			{
				Name:  "comment",
				Usage: "Comment on a post",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.Int64Flag{Name: "post", Required: true},
					&cli.StringFlag{Name: "text", Required: true},
				},
				Action: cmdComment,
			},
			{
				Name:  "delete",
				Usage: "Delete a post",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.Int64Flag{Name: "post", Required: true},
				},
				Action: cmdDelete,
			},
			{
				Name:    "read",
				Aliases: []string{"list"},
				Usage:   "List posts, or show one post with its comments",
				Flags: []cli.Flag{
					urlFlag(),
					&cli.StringFlag{Name: "hashtag"},
					&cli.Int64Flag{Name: "post"},
				},
				Action: cmdRead,
			},
			{
				Name:    "status",
				Aliases: []string{"whoami"},
				Usage:   "Show the saved client config",
				Action:  cmdStatus,
			},
		},
	}
}
