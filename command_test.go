package tuyalan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand_String(t *testing.T) {
	require.Equal(t, "CONTROL", CmdControl.String())
	require.Equal(t, "unknown command", Command(0xfe).String())
}

func TestCommand_Known(t *testing.T) {
	require.True(t, CmdHeartBeat.Known())
	require.False(t, Command(0xfe).Known())
}

func TestCommand_NoHeaderSet(t *testing.T) {
	require.True(t, hasNoHeader(CmdDPQuery))
	require.True(t, hasNoHeader(CmdHeartBeat))
	require.False(t, hasNoHeader(CmdControl))
}

func TestCommand_UpdateDpsAlias(t *testing.T) {
	require.Equal(t, CmdDPRefresh, CmdUpdateDps)
}
