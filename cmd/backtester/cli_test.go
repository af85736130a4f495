package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseParamFlagsSplitsNumericAndStringValues(t *testing.T) {
	params, err := parseParamFlags([]string{"lookback=20", "side=long"})
	require.NoError(t, err)
	require.Equal(t, 20.0, params["lookback"])
	require.Equal(t, "long", params["side"])
}

func TestParseParamFlagsRejectsMissingEquals(t *testing.T) {
	_, err := parseParamFlags([]string{"lookback20"})
	require.Error(t, err)
}

func TestParseOptFlagsParsesRange(t *testing.T) {
	opts, err := parseOptFlags([]string{"lookback=5:20:5"})
	require.NoError(t, err)
	require.Len(t, opts, 1)
	require.Equal(t, "lookback", opts[0].Name)
	require.Equal(t, 5.0, opts[0].From)
	require.Equal(t, 20.0, opts[0].To)
	require.Equal(t, 5.0, opts[0].Step)
}

func TestParseOptFlagsRejectsZeroStep(t *testing.T) {
	_, err := parseOptFlags([]string{"lookback=5:20:0"})
	require.Error(t, err)
}

func TestParseOptFlagsRejectsMalformedRange(t *testing.T) {
	_, err := parseOptFlags([]string{"lookback=5:20"})
	require.Error(t, err)
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	require.Equal(t, []string{"AAPL", "MSFT"}, splitCSV(" AAPL, MSFT ,"))
}

func TestFailCarriesExitCode(t *testing.T) {
	err := fail(exitPartialFailure, errors.New("boom"))
	var ce *cliError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, exitPartialFailure, ce.code)
	require.EqualError(t, err, "boom")
}
