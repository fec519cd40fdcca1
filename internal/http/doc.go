// Package httpapp provides the HTTP server for the tagblog API.
//
//	@title						tagblog API
//	@version					1.0
//	@description				Posts, comments and hashtags with token authentication.
//	@description
//	@description				## Authentication
//	@description
//	@description				Register or log in to get a token, then send it on every write:
//	@description				```bash
//	@description				curl -X POST /api/auth/register/ -d '{"username":"alice","password":"secret1"}'
//	@description				# Returns: {"user_id": 1, "username": "alice", "email": "", "token": "TOKEN"}
//	@description				curl -X POST /api/posts/ -H "Authorization: Token TOKEN" -d '{"title":"Hi","content":"First post","hashtags":["Go","news"]}'
//	@description				```
//	@description				`Authorization: Bearer TOKEN` is accepted as well.
//	@description
//	@description				## Hashtags
//	@description				Hashtags are trimmed and lowercased, so `Music`, `music ` and `MUSIC` are the same tag.
//	@description				On update, omitting `hashtags` keeps the current tags and sending `[]` removes them.
//
//	@contact.name				tagblog
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	TokenAuth
//	@in							header
//	@name						Authorization
//	@description				"Token <key>" from /api/auth/register/ or /api/auth/login/
//
//	@tag.name					Posts
//	@tag.description			Blog posts with their hashtags and comments.
//
//	@tag.name					Comments
//	@tag.description			Flat comments on posts.
//
//	@tag.name					Hashtags
//	@tag.description			Canonical hashtag catalogue shared by all posts.
//
//	@tag.name					Authentication
//	@tag.description			Registration and login. Each user has one token, reused across logins.
//
//	@tag.name					Users
//	@tag.description			Public profiles with the user's posts.
//
//	@tag.name					Meta
//	@tag.description			Health and counters.
package httpapp
