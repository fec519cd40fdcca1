package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type Service struct {
	store store.Store
	cost  int
	now   func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"omitempty,max=254,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the result of a successful Register.
type Registration struct {
	User  model.User
	Token string
}

// Session is the result of a successful Login.
type Session struct {
	User  model.User
	Token string
}

func NewService(store store.Store, cost int) *Service {
	return &Service{
		store: store,
		cost:  cost,
		now:   time.Now,
	}
}

// Register creates a user with a hashed password and issues its token in
// the same transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	if err := checkRegistration(in); err != nil {
		return Registration{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Registration{}, fmt.Errorf("hash password: %w", err)
	}
	key, err := randomToken(20)
	if err != nil {
		return Registration{}, err
	}

	user := model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	var token model.Token
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		id, err := tx.CreateUser(ctx, &user)
		if err != nil {
			return err
		}
		user.ID = id
		token, err = tx.GetOrCreateToken(ctx, model.Token{Key: key, UserID: id, CreatedAt: user.CreatedAt})
		return err
	})
	if errors.Is(err, store.ErrDuplicateUsername) {
		return Registration{}, validation.Field("username", "A user with that username already exists.")
	}
	if err != nil {
		return Registration{}, err
	}
	user.PasswordHash = ""
	return Registration{User: user, Token: token.Key}, nil
}

func checkRegistration(in RegisterInput) error {
	verr := &validation.Error{}
	if err := validation.Struct(in); err != nil {
		fe, ok := validation.As(err)
		if !ok {
			return err
		}
		verr.Merge(fe)
	}
	if len(in.Password) > maxPasswordBytes && verr.Fields["password"] == nil {
		verr.Add("password", fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordBytes))
	}
	return verr.OrNil()
}

// Login checks credentials and returns the user's token, creating one if the
// user has none. Unknown users and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := validation.Struct(in); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByUsername(ctx, in.Username)
	if errors.Is(err, store.ErrNotFound) {
		// Burn the same bcrypt work as a real check.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(in.Password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.store.GetTokenByUser(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		key, kerr := randomToken(20)
		if kerr != nil {
			return Session{}, kerr
		}
		token, err = s.store.GetOrCreateToken(ctx, model.Token{Key: key, UserID: user.ID, CreatedAt: s.now().UTC()})
	}
	if err != nil {
		return Session{}, err
	}
	user.PasswordHash = ""
	return Session{User: user, Token: token.Key}, nil
}

// Authenticate resolves a token key to its user.
func (s *Service) Authenticate(ctx context.Context, key string) (model.User, error) {
	if key == "" {
		return model.User{}, ErrMissingToken
	}
	token, err := s.store.GetToken(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrInvalidToken
	}
	if err != nil {
		return model.User{}, err
	}
	user, err := s.store.GetUser(ctx, token.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrInvalidToken
	}
	if err != nil {
		return model.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.dummyHash
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
