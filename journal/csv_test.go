package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp := filepath.Join(dir, "trades.csv")
	ep := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tp, ep)
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", "User1", at)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time: at, SessionID: 1, Username: "User1", Wallet: 92500, Invested: 7500, Holdings: 1,
	}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tp)
	require.Len(t, trades, 2)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, []string{
		"T1", "1", "User1", "AAPL", "SELL", "50",
		"155.000000", "7750.000000", "250.000000", "2026-01-02T03:04:05Z",
	}, trades[1])

	equity := readCSV(t, ep)
	require.Len(t, equity, 2)
	assert.Equal(t, equityHeader, equity[0])
	assert.Equal(t, "92500.000000", equity[1][3])
}

func TestCSVConcurrentWriters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp := filepath.Join(dir, "trades.csv")
	j, err := NewCSV(tp, filepath.Join(dir, "equity.csv"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := sampleTrade(string(rune('a'+i)), "User1", time.Now())
			assert.NoError(t, j.RecordTrade(rec))
		}(i)
	}
	wg.Wait()
	require.NoError(t, j.Close())

	assert.Len(t, readCSV(t, tp), 21)
}

func TestCSVRequiresPaths(t *testing.T) {
	t.Parallel()

	_, err := NewCSV("", "x.csv")
	assert.Error(t, err)
}
