package studio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerationCostTiers(t *testing.T) {
	p := DefaultPricing()

	cases := []struct {
		name        string
		promptLen   int
		outputBytes int
		fileCount   int
		want        int64
	}{
		{"small request", 100, 1_000, 3, 500},
		{"boundary stays base", 500, 10_000, 5, 500},
		{"long prompt", 600, 1_000, 3, 1_000},
		{"large output", 100, 50_000, 3, 1_000},
		{"mid boundary stays mid", 1_000, 100_000, 20, 1_000},
		{"very long prompt", 1_200, 1_000, 3, 2_000},
		{"huge output", 100, 200_000, 3, 2_000},
		{"many files", 100, 1_000, 25, 2_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.GenerationCost(tc.promptLen, tc.outputBytes, tc.fileCount))
		})
	}
}

func TestChatCost(t *testing.T) {
	p := DefaultPricing()
	require.Equal(t, int64(100), p.ChatCost(false))
	require.Equal(t, int64(200), p.ChatCost(true))
}
