package cache

import (
	"os"
	"path/filepath"
	"surveysync/internal/components/telemetry"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t testing.TB) Store {
	store, err := NewStore(filepath.Join(t.TempDir(), "responses"), telemetry.SlogAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestValidId(t *testing.T) {
	testCases := []struct {
		id    string
		valid bool
	}{
		{id: "a1b2c3", valid: true},
		{id: "fd2e3b4a-1_Z", valid: true},
		{id: "", valid: false},
		{id: "../etc/passwd", valid: false},
		{id: "a/b", valid: false},
		{id: "with space", valid: false},
		{id: ".hidden", valid: false},
	}

	for _, test := range testCases {
		require.Equal(t, test.valid, ValidId(test.id), test.id)
	}
}

func TestWriteExistsDelete(t *testing.T) {
	store := newTestStore(t)

	exists, err := store.Exists("abc")
	require.NoError(t, err)
	require.False(t, exists)

	err = store.Write("abc", []byte(`{"response_id":"abc"}`))
	require.NoError(t, err)

	exists, err = store.Exists("abc")
	require.NoError(t, err)
	require.True(t, exists)

	contents, err := os.ReadFile(filepath.Join(store.Dir(), "abc.json"))
	require.NoError(t, err)
	require.Equal(t, `{"response_id":"abc"}`, string(contents))

	require.NoError(t, store.Delete("abc"))
	exists, err = store.Exists("abc")
	require.NoError(t, err)
	require.False(t, exists)

	// deleting something that is not there is fine
	require.NoError(t, store.Delete("abc"))
}

func TestWriteLeavesNoTemporaries(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("one", []byte("1")))
	require.NoError(t, store.Write("one", []byte("11")))

	files, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "one.json", files[0].Name())
}

func TestInvalidId(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Exists("../escape")
	require.ErrorIs(t, err, ErrInvalidId)
	require.ErrorIs(t, store.Write("", []byte("x")), ErrInvalidId)
	require.ErrorIs(t, store.Delete("a/b"), ErrInvalidId)
}

func TestSweepAndDeletePartials(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "responses")
	require.NoError(t, os.MkdirAll(dir, 0755))

	stale := filepath.Join(dir, tempPrefix+"old"+tempSep+"123"+tempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("trunc"), 0644))

	store, err := NewStore(dir, telemetry.SlogAPI{})
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))

	partial := filepath.Join(dir, tempPrefix+"abc"+tempSep+"999"+tempSuffix)
	require.NoError(t, os.WriteFile(partial, []byte("trunc"), 0644))
	require.NoError(t, store.Delete("abc"))
	_, err = os.Stat(partial)
	require.True(t, os.IsNotExist(err))
}

func TestDeleteOnlyTouchesOwnPartials(t *testing.T) {
	store := newTestStore(t)

	own := filepath.Join(store.Dir(), tempPrefix+"a"+tempSep+"111"+tempSuffix)
	require.NoError(t, os.WriteFile(own, []byte("trunc"), 0644))
	// ids that start with "a" followed by a valid id character
	others := []string{"a-b", "a_b", "ab"}
	for _, id := range others {
		tmp, err := os.CreateTemp(store.Dir(), tempPrefix+id+tempSep+"*"+tempSuffix)
		require.NoError(t, err)
		require.NoError(t, tmp.Close())
	}
	require.NoError(t, store.Write("a-b", []byte("done")))

	require.NoError(t, store.Delete("a"))

	_, err := os.Stat(own)
	require.True(t, os.IsNotExist(err))
	for _, id := range others {
		matches, err := filepath.Glob(filepath.Join(store.Dir(), tempPrefix+id+tempSep+"*"+tempSuffix))
		require.NoError(t, err)
		require.Len(t, matches, 1, id)
	}
	exists, err := store.Exists("a-b")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestEntries(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("b", []byte("bb")))
	require.NoError(t, store.Write("a", []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "sub.json"), 0755))

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Id)
	require.EqualValues(t, 1, entries[0].Size)
	require.Equal(t, "b", entries[1].Id)
	require.EqualValues(t, 2, entries[1].Size)
	require.False(t, entries[1].ModTime.IsZero())
}
