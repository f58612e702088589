package retry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embranch/embranch/internal/eerr"
)

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: 1}, func() error {
		calls++
		if calls < 3 {
			return eerr.New(eerr.NetworkError, "transient blip")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: 1}, func() error {
		calls++
		return eerr.New(eerr.InvalidArgument, "bad input")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
