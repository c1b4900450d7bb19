package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{StartedAt: time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC), ID: "a|b"}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeCursorEdgeCases(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	for _, bad := range []string{"!!!", "bm90LWEtY3Vyc29y", "MTIzfA"} {
		_, err := DecodeCursor(bad)
		require.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}
