package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string   `json:"username" validate:"required,max=10,username"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Password string   `json:"password" validate:"required,min=6"`
	Title    string   `json:"title" validate:"notblank"`
	Tags     []string `json:"tags" validate:"dive,max=3"`
}

func TestStructFieldMessages(t *testing.T) {
	err := Struct(signup{
		Username: "bad name!",
		Email:    "nope",
		Password: "12345",
		Title:    "   ",
		Tags:     []string{"ok", "toolong"},
	})
	verr, ok := As(err)
	require.True(t, ok, "expected *Error, got %T", err)

	assert.Equal(t, []string{"Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."}, verr.Fields["username"])
	assert.Equal(t, []string{"Enter a valid email address."}, verr.Fields["email"])
	assert.Equal(t, []string{"Ensure this field has at least 6 characters."}, verr.Fields["password"])
	assert.Equal(t, []string{MsgBlank}, verr.Fields["title"])
	assert.Equal(t, []string{"Ensure this field has no more than 3 characters."}, verr.Fields["tags"])
}

func TestStructValid(t *testing.T) {
	err := Struct(signup{Username: "ann", Password: "123456", Title: "hi"})
	assert.NoError(t, err)
}

func TestStructRequired(t *testing.T) {
	err := Struct(signup{Title: "x"})
	verr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, []string{MsgRequired}, verr.Fields["username"])
	assert.Equal(t, []string{MsgRequired}, verr.Fields["password"])
}

func TestErrorHelpers(t *testing.T) {
	var e Error
	assert.True(t, e.Empty())
	assert.NoError(t, e.OrNil())

	e.Add("title", MsgBlank).Merge(Field("content", MsgRequired)).Merge(nil)
	assert.False(t, e.Empty())
	assert.Equal(t, "validation failed: content: This field is required.; title: This field may not be blank.", e.Error())

	wrapped := fmt.Errorf("create: %w", e.OrNil())
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Len(t, got.Fields, 2)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
