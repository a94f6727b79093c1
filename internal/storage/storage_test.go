package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batulgn/gipfeed/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()

	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := Open(Config{
		DBPath:       filepath.Join(dir, "gip_test.db"),
		TradeLogPath: filepath.Join(dir, "trades.csv"),
		BoardLogPath: filepath.Join(dir, "boards.csv"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	s.sleep = func(time.Duration) {} // no real backoff sleeps in tests
	return s
}

func testTrade() *models.TradeRecord {
	return &models.TradeRecord{
		ContractName: "PH25011014",
		Time:         time.Date(2025, time.January, 10, 13, 5, 0, 0, time.Local),
		Price:        2500.0,
		Quantity:     10.0,
		Region:       "TR1",
		IngestedAt:   time.Date(2025, time.January, 10, 13, 5, 2, 0, time.Local),
		AOF1h:        2480.25,
	}
}

func ptr(v float64) *float64 { return &v }

func TestAppendTradeIdempotent(t *testing.T) {
	s := newTestStorage(t)
	rec := testTrade()

	require.NoError(t, s.AppendTrade(rec))
	require.NoError(t, s.AppendTrade(rec))

	var count int64
	require.NoError(t, s.db.Model(&Trade{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "duplicate natural key must collapse to one row")

	var row Trade
	require.NoError(t, s.db.First(&row).Error)
	assert.Equal(t, "PH25011014", row.ContractName)
	assert.Equal(t, "2025-01-10T13:05:00", row.Time)
	require.NotNil(t, row.AOF1h)
	assert.InDelta(t, 2480.25, *row.AOF1h, 1e-9)
	require.NotNil(t, row.Region)
	assert.Equal(t, "TR1", *row.Region)
}

func TestAppendTradeDistinctKeysBothStored(t *testing.T) {
	s := newTestStorage(t)

	first := testTrade()
	second := testTrade()
	second.Price = 2501.0 // different natural key

	require.NoError(t, s.AppendTrade(first))
	require.NoError(t, s.AppendTrade(second))

	var count int64
	require.NoError(t, s.db.Model(&Trade{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAppendTradeEmptyRegionStoredAsNull(t *testing.T) {
	s := newTestStorage(t)
	rec := testTrade()
	rec.Region = ""

	require.NoError(t, s.AppendTrade(rec))

	var row Trade
	require.NoError(t, s.db.First(&row).Error)
	assert.Nil(t, row.Region)
}

func TestUpsertBoardLastWriteWins(t *testing.T) {
	s := newTestStorage(t)

	first := &models.BoardSnapshot{
		ContractName: "PH25011014",
		Time:         "2025-01-10T13:00:00",
		MCP:          ptr(2400),
		Volume:       ptr(100),
	}
	second := &models.BoardSnapshot{
		ContractName: "PH25011014",
		Time:         "2025-01-10T13:00:00",
		MCP:          ptr(2450),
	}

	require.NoError(t, s.UpsertBoard(first))
	require.NoError(t, s.UpsertBoard(second))

	var count int64
	require.NoError(t, s.db.Model(&Board{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row Board
	require.NoError(t, s.db.First(&row).Error)
	require.NotNil(t, row.MCP)
	assert.InDelta(t, 2450, *row.MCP, 1e-9)
	assert.Nil(t, row.Volume, "later snapshot replaces all value columns")
}

func TestTradeLogHeaderWrittenOnce(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.AppendTrade(testTrade()))
	second := testTrade()
	second.Price = 2600
	require.NoError(t, s.AppendTrade(second))

	f, err := os.Open(s.tradeLog.path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3, "one header plus two data rows")
	assert.Equal(t, tradeLogHeader, rows[0])
	assert.Equal(t, "PH25011014", rows[1][0])
	assert.Equal(t, "2480.25", rows[1][5])
}

func TestBoardLogOptionalFieldsBlank(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{
		ContractName: "PH25011014",
		Time:         "2025-01-10T13:00:00",
		MCP:          ptr(2430),
	}))

	f, err := os.Open(s.boardLog.path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, boardLogHeader, rows[0])
	assert.Equal(t, "2430", rows[1][5]) // mcp column
	assert.Equal(t, "", rows[1][2])     // averagePrice absent
}

func TestTradesInRange(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		rec := testTrade()
		rec.Time = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.AppendTrade(rec))
	}

	got, err := s.TradesInRange("PH25011014", base.Add(30*time.Minute), base.Add(150*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-01-10T13:00:00", got[0].Time)
	assert.Equal(t, "2025-01-10T14:00:00", got[1].Time)

	all, err := s.TradesInRange("", base, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestBoardsInRange(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "PH25011014", Time: "2025-01-10T13:00:00"}))
	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "PH25011014", Time: "2025-01-10T15:00:00"}))

	from := time.Date(2025, time.January, 10, 12, 30, 0, 0, time.Local)
	to := time.Date(2025, time.January, 10, 14, 0, 0, 0, time.Local)
	got, err := s.BoardsInRange("PH25011014", from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-01-10T13:00:00", got[0].Time)
}

func TestOpenContracts(t *testing.T) {
	s := newTestStorage(t)

	now := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.Local)

	// Open: cutoff 13:00 on Jan 10. Closed: delivered back in 2024.
	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "PH25011014", Time: "2025-01-10T13:00:00", MCP: ptr(2400)}))
	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "PH25011014", Time: "2025-01-10T13:30:00", MCP: ptr(2450)}))
	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "PH24060112", Time: "2024-06-01T11:00:00"}))
	require.NoError(t, s.UpsertBoard(&models.BoardSnapshot{ContractName: "notacode", Time: "2025-01-10T13:00:00"}))

	open, err := s.OpenContracts(now)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "PH25011014", open[0].ContractName)
	assert.Equal(t, "2025-01-10T13:30:00", open[0].Time, "latest snapshot wins")
	require.NotNil(t, open[0].MCP)
	assert.InDelta(t, 2450, *open[0].MCP, 1e-9)
}

func TestWithWriteRetryRecovers(t *testing.T) {
	s := newTestStorage(t)

	calls := 0
	err := s.withWriteRetry(func() error {
		calls++
		if calls < 4 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestWithWriteRetryExhaustsBudget(t *testing.T) {
	s := newTestStorage(t)

	calls := 0
	err := s.withWriteRetry(func() error {
		calls++
		return errors.New("database is locked")
	})

	var cerr *ContentionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, retryAttempts, calls)
	assert.Equal(t, retryAttempts, cerr.Attempts)
}

func TestWithWriteRetryNonTransientFailsFast(t *testing.T) {
	s := newTestStorage(t)

	calls := 0
	err := s.withWriteRetry(func() error {
		calls++
		return fmt.Errorf("constraint violation")
	})

	require.Error(t, err)
	var cerr *ContentionError
	assert.False(t, errors.As(err, &cerr))
	assert.Equal(t, 1, calls)
}

func TestWriteContinuesAfterDroppedWrite(t *testing.T) {
	s := newTestStorage(t)

	err := s.withWriteRetry(func() error { return errors.New("database is locked") })
	require.Error(t, err)

	// The next write is unaffected by the previous drop.
	require.NoError(t, s.AppendTrade(testTrade()))
}
