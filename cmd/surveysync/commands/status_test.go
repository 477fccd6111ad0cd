package commands

import (
	"surveysync/internal/cache"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMissingIds(t *testing.T) {
	entries := []cache.Entry{{Id: "b"}, {Id: "d"}, {Id: "stale"}}

	require.Equal(t, []string{"c", "a"}, missingIds([]string{"c", "b", "a", "d"}, entries))
	require.Empty(t, missingIds([]string{"b", "d"}, entries))
	require.Empty(t, missingIds(nil, entries))
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "0 B", formatSize(0))
	require.Equal(t, "1023 B", formatSize(1023))
	require.Equal(t, "1.0 KiB", formatSize(1024))
	require.Equal(t, "1.5 MiB", formatSize(1536*1024))
	require.Equal(t, "10 KiB", formatSize(10*1024))
	require.Equal(t, "0 B", formatSize(-1))
}
