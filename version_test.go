package tuyalan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion_Validate(t *testing.T) {
	for _, v := range []Version{Version31, Version32, Version33, Version34} {
		require.NoError(t, v.Validate())
	}
	require.ErrorIs(t, Version("3.5").Validate(), ErrUnsupportedVersion)
	require.ErrorIs(t, Version("bogus").Validate(), ErrUnsupportedVersion)
}

func TestVersion_UsesHMAC(t *testing.T) {
	require.False(t, Version33.usesHMAC())
	require.True(t, Version34.usesHMAC())
}

func TestVersion_HeaderBytes(t *testing.T) {
	h := Version33.headerBytes()
	require.Len(t, h, 15)
	require.Equal(t, []byte("3.3"), h[:3])
	for _, b := range h[3:] {
		require.Equal(t, byte(0), b)
	}
}
