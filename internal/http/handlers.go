package httpapp

import (
	"net/http"
	"strconv"

	"github.com/alphabot-ai/tagblog/internal/auth"
	"github.com/alphabot-ai/tagblog/internal/blog"
	"github.com/alphabot-ai/tagblog/internal/validation"
	"github.com/alphabot-ai/tagblog/internal/view"
)

// Request bodies. Pointers tell an absent field apart from an empty one;
// they are never reused as responses.

type postRequest struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Hashtags *[]string `json:"hashtags"`
}

type commentRequest struct {
	Post    *int64  `json:"post"`
	Content *string `json:"content"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// required reports every named field whose value is nil.
func required(fields map[string]bool) error {
	verr := &validation.Error{}
	for name, present := range fields {
		if !present {
			verr.Add(name, validation.MsgRequired)
		}
	}
	return verr.OrNil()
}

// handleListPosts godoc
//
//	@Summary		List posts
//	@Description	Newest first. The hashtag filter matches canonical names, so case and surrounding spaces are ignored. A blank hashtag matches nothing.
//	@Tags			Posts
//	@Produce		json
//	@Param			hashtag	query	string	false	"Hashtag name"
//	@Success		200		{array}	view.PostList
//	@Router			/api/posts/ [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	var filter blog.PostFilter
	if q := r.URL.Query(); q.Has("hashtag") {
		tag := q.Get("hashtag")
		filter.Hashtag = &tag
	}
	posts, err := s.blog.ListPosts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewPostLists(posts))
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Description	Hashtags are trimmed and lowercased; repeats collapse to one.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		TokenAuth
//	@Param			body	body		postRequest	true	"Post"
//	@Success		201		{object}	view.PostWrite
//	@Failure		400		{object}	map[string][]string	"Field errors"
//	@Failure		401		{object}	map[string]string
//	@Failure		429		{object}	map[string]any
//	@Router			/api/posts/ [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, "post", strconv.FormatInt(user.ID, 10), s.cfg.RateLimits.PostPerMinute) {
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := required(map[string]bool{"title": req.Title != nil, "content": req.Content != nil}); err != nil {
		s.fail(w, r, err)
		return
	}
	in := blog.PostInput{Title: *req.Title, Content: *req.Content}
	if req.Hashtags != nil {
		in.Hashtags = *req.Hashtags
	}
	post, err := s.blog.CreatePost(r.Context(), user.ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.NewPostWrite(post))
}

// handleGetPost godoc
//
//	@Summary	Get a post
//	@Tags		Posts
//	@Produce	json
//	@Param		id	path		int	true	"Post ID"
//	@Success	200	{object}	view.PostDetail
//	@Failure	404	{object}	map[string]string
//	@Router		/api/posts/{id}/ [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	post, err := s.blog.GetPost(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewPostDetail(post))
}

// handleUpdatePost godoc
//
//	@Summary		Update a post
//	@Description	PUT needs title and content; PATCH takes any subset. An absent hashtags field keeps the current links, an empty list removes them all.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		TokenAuth
//	@Param			id		path		int			true	"Post ID"
//	@Param			body	body		postRequest	true	"Changes"
//	@Success		200		{object}	view.PostWrite
//	@Failure		400		{object}	map[string][]string
//	@Failure		401		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/api/posts/{id}/ [put]
//	@Router			/api/posts/{id}/ [patch]
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.allowRateLimit(w, "post", strconv.FormatInt(user.ID, 10), s.cfg.RateLimits.PostPerMinute) {
		return
	}
	var req postRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if r.Method == http.MethodPut {
		if err := required(map[string]bool{"title": req.Title != nil, "content": req.Content != nil}); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	post, err := s.blog.UpdatePost(r.Context(), id, blog.PostPatch{
		Title:    req.Title,
		Content:  req.Content,
		Hashtags: req.Hashtags,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewPostWrite(post))
}

// handleDeletePost godoc
//
//	@Summary		Delete a post
//	@Description	Removes the post with its comments and hashtag links. Hashtags themselves stay.
//	@Tags			Posts
//	@Security		TokenAuth
//	@Param			id	path	int	true	"Post ID"
//	@Success		204
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Router			/api/posts/{id}/ [delete]
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.blog.DeletePost(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListComments godoc
//
//	@Summary	List comments
//	@Tags		Comments
//	@Produce	json
//	@Param		post	query	int	false	"Only comments on this post"
//	@Success	200		{array}	view.CommentDetail
//	@Router		/api/comments/ [get]
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	var filter blog.CommentFilter
	if raw := r.URL.Query().Get("post"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.fail(w, r, validation.Field("post", "A valid integer is required."))
			return
		}
		filter.PostID = id
	}
	comments, err := s.blog.ListComments(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewCommentDetails(comments))
}

// handleCreateComment godoc
//
//	@Summary	Comment on a post
//	@Tags		Comments
//	@Accept		json
//	@Produce	json
//	@Security	TokenAuth
//	@Param		body	body		commentRequest	true	"Comment"
//	@Success	201		{object}	view.CommentDetail
//	@Failure	400		{object}	map[string][]string
//	@Failure	401		{object}	map[string]string
//	@Failure	404		{object}	map[string]string	"Post not found"
//	@Router		/api/comments/ [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, "comment", strconv.FormatInt(user.ID, 10), s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	var req commentRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := required(map[string]bool{"post": req.Post != nil, "content": req.Content != nil}); err != nil {
		s.fail(w, r, err)
		return
	}
	comment, err := s.blog.CreateComment(r.Context(), user.ID, blog.CommentInput{PostID: *req.Post, Content: *req.Content})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.NewCommentDetail(comment))
}

// handleGetComment godoc
//
//	@Summary	Get a comment
//	@Tags		Comments
//	@Produce	json
//	@Param		id	path		int	true	"Comment ID"
//	@Success	200	{object}	view.CommentDetail
//	@Failure	404	{object}	map[string]string
//	@Router		/api/comments/{id}/ [get]
func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comment, err := s.blog.GetComment(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewCommentDetail(comment))
}

// handleUpdateComment godoc
//
//	@Summary		Edit a comment
//	@Description	Only content can change.
//	@Tags			Comments
//	@Accept			json
//	@Produce		json
//	@Security		TokenAuth
//	@Param			id		path		int				true	"Comment ID"
//	@Param			body	body		commentRequest	true	"Changes"
//	@Success		200		{object}	view.CommentDetail
//	@Failure		400		{object}	map[string][]string
//	@Failure		401		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/api/comments/{id}/ [put]
//	@Router			/api/comments/{id}/ [patch]
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.allowRateLimit(w, "comment", strconv.FormatInt(user.ID, 10), s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	var req commentRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Content == nil {
		if r.Method == http.MethodPut {
			s.fail(w, r, validation.Field("content", validation.MsgRequired))
			return
		}
		comment, err := s.blog.GetComment(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view.NewCommentDetail(comment))
		return
	}
	comment, err := s.blog.UpdateComment(r.Context(), id, *req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewCommentDetail(comment))
}

// handleDeleteComment godoc
//
//	@Summary	Delete a comment
//	@Tags		Comments
//	@Security	TokenAuth
//	@Param		id	path	int	true	"Comment ID"
//	@Success	204
//	@Failure	401	{object}	map[string]string
//	@Failure	404	{object}	map[string]string
//	@Router		/api/comments/{id}/ [delete]
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.blog.DeleteComment(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListHashtags godoc
//
//	@Summary	List hashtags
//	@Tags		Hashtags
//	@Produce	json
//	@Success	200	{array}	view.Hashtag
//	@Router		/api/hashtags/ [get]
func (s *Server) handleListHashtags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.blog.ListHashtags(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewHashtags(tags))
}

// handleGetHashtag godoc
//
//	@Summary	Get a hashtag
//	@Tags		Hashtags
//	@Produce	json
//	@Param		id	path		int	true	"Hashtag ID"
//	@Success	200	{object}	view.Hashtag
//	@Failure	404	{object}	map[string]string
//	@Router		/api/hashtags/{id}/ [get]
func (s *Server) handleGetHashtag(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tag, err := s.blog.GetHashtag(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewHashtag(tag))
}

// handleRegister godoc
//
//	@Summary		Register a user
//	@Description	Returns the new user's token. Passwords need at least 6 characters.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			body	body		registerRequest	true	"Credentials"
//	@Success		201		{object}	view.Registration
//	@Failure		400		{object}	map[string][]string
//	@Failure		429		{object}	map[string]any
//	@Router			/api/auth/register/ [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, "auth", clientIP(r), s.cfg.RateLimits.AuthPerMinute) {
		return
	}
	var req registerRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	reg, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.Registration{
		UserID:   reg.User.ID,
		Username: reg.User.Username,
		Email:    reg.User.Email,
		Token:    reg.Token,
	})
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Returns the user's existing token, or a new one if none exists.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	view.Session
//	@Failure		401		{object}	map[string]string	"Invalid credentials"
//	@Failure		429		{object}	map[string]any
//	@Router			/api/auth/login/ [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, "auth", clientIP(r), s.cfg.RateLimits.AuthPerMinute) {
		return
	}
	var req loginRequest
	if err := readJSON(r.Body, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), auth.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Session{
		Token:    sess.Token,
		UserID:   sess.User.ID,
		Username: sess.User.Username,
	})
}

// handleGetUser godoc
//
//	@Summary	Get a user profile
//	@Tags		Users
//	@Produce	json
//	@Param		id	path		int	true	"User ID"
//	@Success	200	{object}	view.Profile
//	@Failure	404	{object}	map[string]string
//	@Router		/api/users/{id}/ [get]
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	profile, err := s.blog.GetProfile(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewProfile(profile))
}

// handleGetStats godoc
//
//	@Summary	Site counters
//	@Tags		Meta
//	@Produce	json
//	@Success	200	{object}	view.Stats
//	@Router		/api/stats/ [get]
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.blog.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewStats(stats))
}
