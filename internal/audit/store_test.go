package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, level Level) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "guard.db"), level)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLogEventLevels(t *testing.T) {
	t.Run("actions skips allowed", func(t *testing.T) {
		store := openTestStore(t, LevelActions)
		store.LogEvent("s1", "t1", "guard", "grep", "blocked", "grep foo", nil)
		store.LogEvent("s1", "t2", "guard", "", "allowed", "make build", nil)

		events, err := store.RecentEvents(10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "blocked", events[0].Action)
		assert.Equal(t, "grep", events[0].Rule)
		assert.NotEmpty(t, events[0].EventID)
	})

	t.Run("all keeps allowed", func(t *testing.T) {
		store := openTestStore(t, LevelAll)
		store.LogEvent("s1", "t1", "guard", "", "allowed", "make build", nil)
		events, err := store.RecentEvents(10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("off logs nothing", func(t *testing.T) {
		store := openTestStore(t, LevelOff)
		store.LogEvent("s1", "t1", "guard", "grep", "blocked", "grep foo", nil)
		events, err := store.RecentEvents(10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestLogEventRedactsSecrets(t *testing.T) {
	store := openTestStore(t, LevelAll)
	store.LogEvent("s1", "t1", "guard", "", "blocked", "curl -H 'Authorization: Bearer abcdef123456' https://x", nil)

	events, err := store.RecentEvents(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Command, "[REDACTED]")
	assert.NotContains(t, events[0].Command, "abcdef123456")
}

func TestNilStoreIsNoOp(t *testing.T) {
	var store *Store
	store.LogEvent("s", "t", "guard", "r", "blocked", "cmd", nil)
	store.RecordSession("s")
	assert.False(t, store.CheckTrust("r", "cmd", "s"))
	assert.Empty(t, store.LastSessionID())
	assert.NoError(t, store.Close())
}

func TestTrustLifecycle(t *testing.T) {
	store := openTestStore(t, LevelActions)

	require.NoError(t, store.AddTrust("stash-drop", "", "always", ""))
	assert.True(t, store.CheckTrust("stash-drop", "git stash drop", "any-session"))
	assert.False(t, store.CheckTrust("checkout-dash-dash", "git checkout -- x", "any-session"))

	removed, err := store.RemoveTrust("stash-drop", "", false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.False(t, store.CheckTrust("stash-drop", "git stash drop", "any-session"))
}

func TestTrustSessionScope(t *testing.T) {
	store := openTestStore(t, LevelActions)
	require.NoError(t, store.AddTrust("oc-medium", "", "session", "sess-a"))

	assert.True(t, store.CheckTrust("oc-medium", "oc label pod x y=z", "sess-a"))
	assert.False(t, store.CheckTrust("oc-medium", "oc label pod x y=z", "sess-b"))
}

func TestTrustMatchPattern(t *testing.T) {
	store := openTestStore(t, LevelActions)
	require.NoError(t, store.AddTrust("oc-high", "Deploy.yaml", "always", ""))

	assert.True(t, store.CheckTrust("oc-high", "oc apply -f deploy.yaml", "s"))
	assert.False(t, store.CheckTrust("oc-high", "oc apply -f other.yaml", "s"))
}

func TestTrustUpsertByRulePatternScope(t *testing.T) {
	store := openTestStore(t, LevelActions)
	require.NoError(t, store.AddTrust("stash-drop", "", "always", ""))
	require.NoError(t, store.AddTrust("stash-drop", "", "always", ""))

	rules, err := store.ListTrust()
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRemoveTrustWithPattern(t *testing.T) {
	store := openTestStore(t, LevelActions)
	require.NoError(t, store.AddTrust("oc-high", "deploy.yaml", "always", ""))
	require.NoError(t, store.AddTrust("oc-high", "", "always", ""))

	removed, err := store.RemoveTrust("oc-high", "deploy.yaml", true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	rules, err := store.ListTrust()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Empty(t, rules[0].MatchPattern)
}

func TestSessionState(t *testing.T) {
	store := openTestStore(t, LevelActions)
	assert.Empty(t, store.LastSessionID())

	store.RecordSession("sess-1")
	assert.Equal(t, "sess-1", store.LastSessionID())

	store.RecordSession("sess-2")
	assert.Equal(t, "sess-2", store.LastSessionID())
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in       string
		redacted bool
	}{
		{"export API_KEY=supersecretvalue", true},
		{"curl -H 'Authorization: Bearer abcdefgh12345678'", true},
		{"password: hunter2longenough", true},
		{"git status", false},
		{"token=short", false}, // under 8 chars stays
	}
	for _, tt := range tests {
		got := Redact(tt.in)
		if tt.redacted {
			assert.Contains(t, got, "[REDACTED]", "input %q", tt.in)
		} else {
			assert.Equal(t, tt.in, got, "input %q", tt.in)
		}
	}
}
