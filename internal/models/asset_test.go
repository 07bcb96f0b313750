package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssetStatusTerminal(t *testing.T) {
	tests := []struct {
		status   AssetStatus
		terminal bool
	}{
		{StatusInUse, false},
		{StatusAvailable, false},
		{StatusUnderRepair, false},
		{StatusRetired, true},
		{StatusTheftMissing, true},
		{StatusNotSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestAssetStatusValid(t *testing.T) {
	for _, s := range AllStatuses {
		require.True(t, s.Valid())
	}
	require.False(t, AssetStatus("Broken").Valid())
	require.False(t, AssetStatus("").Valid())
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "OFB", NormalizeCode(" ofb "))
	require.Equal(t, "ALL", NormalizeCode("all"))
	require.Equal(t, "", NormalizeCode("   "))
}
