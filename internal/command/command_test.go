package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/backtest StratA", NameBacktest, []string{"StratA"}, true},
		{"/BACKTEST StratA", NameBacktest, []string{"StratA"}, true},
		{"  /backtest StratA 20240101-20240301 cfg.json  ", NameBacktest, []string{"StratA", "20240101-20240301", "cfg.json"}, true},
		{"/results run-1", NameResults, []string{"run-1"}, true},
		{"/Recent 10", NameRecent, []string{"10"}, true},
		{"/logs", NameLogs, []string{}, true},
		{"/help", NameHelp, []string{}, true},
		{"/commands", NameHelp, []string{}, true},
		{"hello", "", nil, false},
		{"/unknown thing", "", nil, false},
		{"/", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := Parse(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, cmd)
				return
			}
			require.NotNil(t, cmd)
			assert.Equal(t, tt.wantName, cmd.Name)
			assert.Equal(t, tt.wantArgs, cmd.Args)
		})
	}
}

func TestParseBacktestArgs(t *testing.T) {
	parsed, ok := ParseBacktestArgs([]string{"StratA", "20240101-20240301", "cfg.json"})
	require.True(t, ok)
	assert.Equal(t, "StratA", parsed.Strategy)
	assert.Equal(t, "20240101-20240301", parsed.Timerange)
	assert.Equal(t, "cfg.json", parsed.Config)

	parsed, ok = ParseBacktestArgs([]string{"StratA"})
	require.True(t, ok)
	assert.Equal(t, "StratA", parsed.Strategy)
	assert.Empty(t, parsed.Timerange)
	assert.Empty(t, parsed.Config)

	_, ok = ParseBacktestArgs(nil)
	assert.False(t, ok)
}
