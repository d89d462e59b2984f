package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestSession(store Store) *Session {
	n := 0
	return New(store,
		WithClock(func() time.Time { return fixedTime }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func TestLoginCreatesFreeUser(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())

	u, err := s.Login(ctx, "alice@x.io", "Alice")
	require.NoError(t, err)

	assert.Equal(t, "id-1", u.ID)
	assert.Equal(t, "alice@x.io", u.Email)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, TierFree, u.Tier)
	assert.Equal(t, 1, u.Credits)
	assert.Empty(t, u.History)
	assert.Equal(t, fixedTime.UnixMilli(), u.JoinedAt)

	current, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, u, current)
}

func TestLoginDefaultName(t *testing.T) {
	s := newTestSession(NewMemoryStore())
	u, err := s.Login(context.Background(), "bob@x.io", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, u.Name)
}

func TestLoginIdempotentByEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())

	first, err := s.Login(ctx, "alice@x.io", "Alice")
	require.NoError(t, err)
	_, err = s.SaveToHistory(ctx, "analyze-resume", "resume", results.Text("ok"))
	require.NoError(t, err)

	again, err := s.Login(ctx, "alice@x.io", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Alice", again.Name)
	assert.Len(t, again.History, 1)
}

func TestLoginDifferentEmailReplacesUser(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())

	_, err := s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)
	u, err := s.Login(ctx, "carol@x.io", "")
	require.NoError(t, err)
	assert.Equal(t, "carol@x.io", u.Email)
	assert.Equal(t, "id-2", u.ID)
}

func TestLoginInvalidEmail(t *testing.T) {
	s := newTestSession(NewMemoryStore())
	for _, email := range []string{"", "not-an-email", "@x.io"} {
		_, err := s.Login(context.Background(), email, "")
		require.Error(t, err, "email %q", email)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidEmail))
	}
}

func TestCurrentWithoutUser(t *testing.T) {
	s := newTestSession(NewMemoryStore())
	u, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCurrentCorruptRecord(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), []byte("{not json")))

	s := newTestSession(store)
	_, err := s.Current(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCorruptSession))

	u, err := s.Login(context.Background(), "alice@x.io", "")
	require.NoError(t, err, "login recovers from a corrupt record")
	assert.Equal(t, "alice@x.io", u.Email)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())

	require.NoError(t, s.Logout(ctx), "logout without a user is a no-op")

	_, err := s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	u, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSaveToHistoryOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())
	_, err := s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)

	const n = 4
	for i := 0; i < n; i++ {
		_, err := s.SaveToHistory(ctx, "quick-rewrite", fmt.Sprintf("input-%d", i), results.Text(fmt.Sprintf("out-%d", i)))
		require.NoError(t, err)
	}

	u, err := s.Current(ctx)
	require.NoError(t, err)
	require.Len(t, u.History, n)
	for i, h := range u.History {
		assert.Equal(t, fmt.Sprintf("input-%d", n-1-i), h.Input)
		assert.Equal(t, results.Text(fmt.Sprintf("out-%d", n-1-i)), h.Result.Result)
	}
}

func TestSaveToHistoryWithoutUser(t *testing.T) {
	s := newTestSession(NewMemoryStore())
	entry, err := s.SaveToHistory(context.Background(), "quick-rewrite", "x", results.Text("y"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestUpgradeTier(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())

	u, err := s.UpgradeTier(ctx, TierPro)
	require.NoError(t, err)
	assert.Nil(t, u, "no user means no upgrade")

	_, err = s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)

	tests := []struct {
		tier    Tier
		credits int
	}{
		{TierPro, 999},
		{TierPro, 999},
		{TierPackage, 9999},
		{TierPackage, 9999},
	}
	for _, tt := range tests {
		u, err := s.UpgradeTier(ctx, tt.tier)
		require.NoError(t, err)
		assert.Equal(t, tt.tier, u.Tier)
		assert.Equal(t, tt.credits, u.Credits)
	}

	_, err = s.UpgradeTier(ctx, TierFree)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidTier))
}

func TestHistoryFilterAndEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(NewMemoryStore())
	_, err := s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)

	_, err = s.SaveToHistory(ctx, "analyze-resume", "a", results.Analysis{Score: 40})
	require.NoError(t, err)
	_, err = s.SaveToHistory(ctx, "cover-letter", "b", results.Text("letter"))
	require.NoError(t, err)
	last, err := s.SaveToHistory(ctx, "analyze-resume", "c", results.Analysis{Score: 80})
	require.NoError(t, err)

	got, err := s.History(ctx, "analyze-resume", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Input)

	got, err = s.History(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	entry, err := s.Entry(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, results.Analysis{Score: 80}, entry.Result.Result)

	_, err = s.Entry(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestGated(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"no user", nil, false},
		{"free with credit", &User{Tier: TierFree, Credits: 1}, false},
		{"free without credit", &User{Tier: TierFree, Credits: 0}, true},
		{"free negative", &User{Tier: TierFree, Credits: -1}, true},
		{"pro without credit", &User{Tier: TierPro, Credits: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Gated())
		})
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("package")
	require.NoError(t, err)
	assert.Equal(t, TierPackage, tier)

	_, err = ParseTier("gold")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidTier))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, []byte(`{"email":"a@b.c"}`)))
	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"a@b.c"}`, string(data))
	assert.Equal(t, filepath.Join(dir, "atsbeaters_user.json"), store.Path())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	s := newTestSession(store)
	_, err = s.Login(ctx, "alice@x.io", "Alice")
	require.NoError(t, err)
	_, err = s.SaveToHistory(ctx, "extract-keywords", "job", results.Keywords{HardSkills: []string{"Go"}})
	require.NoError(t, err)

	reopened := New(store)
	u, err := reopened.Current(ctx)
	require.NoError(t, err)
	require.Len(t, u.History, 1)
	assert.Equal(t, results.Keywords{HardSkills: []string{"Go"}}, u.History[0].Result.Result)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := OpenStore(ctx, BackendMemory, "", "")
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryStore{}, s)

	s, _, err = OpenStore(ctx, BackendFile, t.TempDir(), "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, _, err = OpenStore(ctx, BackendPostgres, "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))

	_, _, err = OpenStore(ctx, "redis", "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("ATSBEATERS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ATSBEATERS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Clear(ctx))

	s := newTestSession(store)
	_, err = s.Login(ctx, "alice@x.io", "")
	require.NoError(t, err)
	u, err := s.UpgradeTier(ctx, TierPro)
	require.NoError(t, err)
	assert.Equal(t, 999, u.Credits)
	require.NoError(t, s.Logout(ctx))
}

func TestPricingPlans(t *testing.T) {
	plans := PricingPlans()
	require.Len(t, plans, 3)
	assert.Equal(t, TierFree, plans[0].Tier)
	assert.Equal(t, "$12", plans[1].Price)
	assert.True(t, plans[1].Popular)
	assert.Contains(t, plans[2].Features, "Photo AI Edit")
}
