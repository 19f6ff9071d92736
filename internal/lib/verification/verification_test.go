package verification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCode_AlwaysSixDigits(t *testing.T) {
	t.Parallel()

	for i := 0; i < 1000; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		require.GreaterOrEqual(t, code, int32(100000))
		require.LessOrEqual(t, code, int32(999999))
	}
}
