package sqliteutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `create table if not exists kv (k text primary key, v text not null);`

func TestRemote(t *testing.T) {
	require.True(t, remote("libsql://db.turso.io"))
	require.True(t, remote("https://db.example.com"))
	require.False(t, remote("surveysync.db"))
	require.False(t, remote(":memory:"))
}

func TestOpenDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	db, err := OpenDB(testSchema, path)
	require.NoError(t, err)
	_, err = db.Exec("insert into kv (k, v) values ('a', '1')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening keeps the data and tolerates the schema being applied again
	db, err = OpenDB(testSchema, path)
	require.NoError(t, err)
	defer db.Close()

	var v string
	require.NoError(t, db.QueryRow("select v from kv where k = 'a'").Scan(&v))
	require.Equal(t, "1", v)
}

func TestOpenDBErrors(t *testing.T) {
	_, err := OpenDB(testSchema, "")
	require.Error(t, err)

	_, err = OpenDB("this is not sql", ":memory:")
	require.Error(t, err)
}
