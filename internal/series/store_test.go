package series_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtester/internal/series"
	"github.com/atlas-desktop/backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bar(date string, price float64) types.Bar {
	d, _ := time.Parse("2006-01-02", date)
	p := decimal.NewFromFloat(price)
	return types.Bar{Date: d, Open: p, High: p, Low: p, Close: p, Volume: 100}
}

func TestAppendUpsertIdempotence(t *testing.T) {
	s := series.NewStore(zap.NewNop())
	bars := []types.Bar{bar("2024-01-01", 100), bar("2024-01-02", 101)}

	s.Append("X", bars)
	s.Append("X", bars) // duplicate append must be a no-op

	asset := s.Asset("X")
	require.Equal(t, 2, asset.Len())
}

func TestAppendUpsertNewerWins(t *testing.T) {
	s := series.NewStore(zap.NewNop())
	s.Append("X", []types.Bar{bar("2024-01-01", 100)})
	s.Append("X", []types.Bar{bar("2024-01-01", 105)})

	asset := s.Asset("X")
	require.Equal(t, 1, asset.Len())
	require.True(t, asset.Bars()[0].Close.Equal(decimal.NewFromFloat(105)))
}

func TestLoadWindowEmptyWhenNoData(t *testing.T) {
	s := series.NewStore(zap.NewNop())
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")

	asset := s.LoadWindow("UNKNOWN", start, end)
	require.Equal(t, 0, asset.Len())
}

func TestCursorPrefixBefore(t *testing.T) {
	s := series.NewStore(zap.NewNop())
	s.Append("X", []types.Bar{
		bar("2024-01-01", 100),
		bar("2024-01-02", 101),
		bar("2024-01-03", 102),
		bar("2024-01-04", 103),
	})

	d, _ := time.Parse("2006-01-02", "2024-01-04")
	cursor := s.CursorAt("X", d)

	prefix := cursor.PrefixBefore(2)
	require.Len(t, prefix, 2)
	require.True(t, prefix[0].Close.Equal(decimal.NewFromFloat(101)))
	require.True(t, prefix[1].Close.Equal(decimal.NewFromFloat(102)))

	current, ok := cursor.Current()
	require.True(t, ok)
	require.True(t, current.Close.Equal(decimal.NewFromFloat(103)))
}

func TestUnionDatesAcrossTickers(t *testing.T) {
	s := series.NewStore(zap.NewNop())
	s.Append("X", []types.Bar{bar("2024-01-01", 100), bar("2024-01-03", 102)})
	s.Append("Y", []types.Bar{bar("2024-01-02", 50)})

	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-03")

	dates := s.UnionDates([]string{"X", "Y"}, start, end)
	require.Len(t, dates, 3)
	require.True(t, dates[0].Before(dates[1]))
	require.True(t, dates[1].Before(dates[2]))
}
