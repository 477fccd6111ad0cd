package commands

import (
	"context"
	"errors"
	"fmt"
	"surveysync/internal/coordinator"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "success", err: nil, expected: ExitOk},
		{name: "config", err: errors.New("invalid config: mailchimp.api_key is required"), expected: ExitGeneral},
		{name: "cancelled", err: fmt.Errorf("run cancelled: %w", context.Canceled), expected: ExitGeneral},
		{name: "listing", err: &coordinator.ListError{Err: errors.New("401")}, expected: ExitList},
		{name: "fetch", err: &coordinator.FetchError{Id: "a", StatusCode: 429}, expected: ExitFetch},
		{
			name:     "wrapped fetch",
			err:      fmt.Errorf("fetch: %w", &coordinator.FetchError{Id: "a", StatusCode: 500}),
			expected: ExitFetch,
		},
		{
			name:     "persist",
			err:      &coordinator.PersistError{Id: "a", Op: "write", Err: errors.New("disk full")},
			expected: ExitPersist,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, ExitCode(test.err))
		})
	}
}
