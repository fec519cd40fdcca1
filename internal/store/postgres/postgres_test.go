package postgres

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/store/storetest"
)

// The suite needs a disposable database; every subtest truncates all tables.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TAGBLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TAGBLOG_TEST_POSTGRES_DSN not set")
	}
	st, err := Open(dsn)
	require.NoError(t, err)
	err = st.db.Exec(`TRUNCATE auth_tokens, post_hashtags, hashtags, comments, posts, users RESTART IDENTITY CASCADE`).Error
	require.NoError(t, err)
	return st
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	require.NoError(t, st.Migrate(t.Context()))
}
