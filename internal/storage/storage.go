// Package storage persists trade and board records with idempotent dual
// writes: an indexed SQLite store plus append-only CSV logs.
//
// One logical writer connection is shared across all channel tasks and
// guarded by a mutex for the duration of each write. The database runs with
// WAL journaling and synchronous=NORMAL; the CSV logs serve as the second
// durability line.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/batulgn/gipfeed/internal/contract"
	"github.com/batulgn/gipfeed/internal/models"
)

// Write retry policy for transient lock contention.
const (
	retryAttempts = 10
	retryBase     = 200 * time.Millisecond
	retryCap      = 3 * time.Second
	retryFactor   = 1.8
)

// ContentionError reports a write dropped after exhausting the retry budget.
// The record is logged by the caller with enough detail to reconstruct it
// from the append-only log.
type ContentionError struct {
	Attempts int
	Err      error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("storage: write dropped after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ContentionError) Unwrap() error { return e.Err }

// Config holds persistence locations.
type Config struct {
	DBPath       string
	TradeLogPath string
	BoardLogPath string
}

// Storage owns the on-disk representations exclusively. Safe for concurrent
// use; all writes are serialized through one mutex.
type Storage struct {
	db       *gorm.DB
	mu       sync.Mutex
	tradeLog *appendLog
	boardLog *appendLog
	log      *logrus.Logger
	sleep    func(time.Duration)
}

// Open opens (creating if needed) the SQLite store and the append logs.
func Open(cfg Config, log *logrus.Logger) (*Storage, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", cfg.DBPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Trade{}, &Board{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	// Single logical writer connection shared across all callers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &Storage{
		db:       db,
		tradeLog: newAppendLog(cfg.TradeLogPath, tradeLogHeader),
		boardLog: newAppendLog(cfg.BoardLogPath, boardLogHeader),
		log:      log,
		sleep:    time.Sleep,
	}, nil
}

// Close releases the database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendTrade persists one trade record: a line in the append-only log plus
// an insert-or-ignore row under the natural key. Replaying the same message
// yields exactly one stored row and at most harmless duplicate log lines.
func (s *Storage) AppendTrade(rec *models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradeLog.append([]string{
		rec.ContractName,
		rec.Time.Format(models.TimeLayout),
		formatFloat(rec.Price),
		formatFloat(rec.Quantity),
		rec.Region,
		fmt.Sprintf("%.2f", rec.AOF1h),
	}); err != nil {
		// The indexed store still gets the record; log and carry on.
		s.log.WithError(err).Error("Trade log append failed")
	}

	row := Trade{
		ContractName:      rec.ContractName,
		Time:              rec.Time.Format(models.TimeLayout),
		Price:             rec.Price,
		Quantity:          rec.Quantity,
		SnapshotTimestamp: rec.IngestedAt.Format(models.TimeLayout),
		AOF1h:             &rec.AOF1h,
	}
	if rec.Region != "" {
		region := rec.Region
		row.Region = &region
	}

	return s.withWriteRetry(func() error {
		return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	})
}

// UpsertBoard persists one board snapshot with last-write-wins semantics on
// (contractName, time): a later write replaces all value columns.
func (s *Storage) UpsertBoard(snap *models.BoardSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.boardLog.append([]string{
		snap.ContractName,
		snap.Time,
		formatOptional(snap.AveragePrice),
		formatOptional(snap.MinPrice),
		formatOptional(snap.MaxPrice),
		formatOptional(snap.MCP),
		formatOptional(snap.LastPrice),
		formatOptional(snap.Total),
		formatOptional(snap.Volume),
		formatOptional(snap.BestBuyPrice),
		formatOptional(snap.BestSellPrice),
	}); err != nil {
		s.log.WithError(err).Error("Board log append failed")
	}

	row := Board{
		ContractName:  snap.ContractName,
		Time:          snap.Time,
		AveragePrice:  snap.AveragePrice,
		MinPrice:      snap.MinPrice,
		MaxPrice:      snap.MaxPrice,
		MCP:           snap.MCP,
		LastPrice:     snap.LastPrice,
		Total:         snap.Total,
		Volume:        snap.Volume,
		BestBuyPrice:  snap.BestBuyPrice,
		BestSellPrice: snap.BestSellPrice,
	}

	return s.withWriteRetry(func() error {
		return s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contractName"}, {Name: "time"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
}

// TradesInRange returns stored trades ordered by time. An empty contractName
// matches all contracts.
func (s *Storage) TradesInRange(contractName string, from, to time.Time) ([]Trade, error) {
	q := s.db.Order("time")
	if contractName != "" {
		q = q.Where("contractName = ?", contractName)
	}
	q = q.Where("time >= ? AND time < ?", from.Format(models.TimeLayout), to.Format(models.TimeLayout))

	var out []Trade
	return out, q.Find(&out).Error
}

// BoardsInRange returns stored board snapshots ordered by time. An empty
// contractName matches all contracts.
func (s *Storage) BoardsInRange(contractName string, from, to time.Time) ([]Board, error) {
	q := s.db.Order("time")
	if contractName != "" {
		q = q.Where("contractName = ?", contractName)
	}
	q = q.Where("time >= ? AND time < ?", from.Format(models.TimeLayout), to.Format(models.TimeLayout))

	var out []Board
	return out, q.Find(&out).Error
}

// OpenContracts returns the latest board snapshot for every contract still
// open at now. Contracts whose code does not parse have no cutoff and are
// excluded, matching the alarm-eligibility rule.
func (s *Storage) OpenContracts(now time.Time) ([]Board, error) {
	var rows []Board
	err := s.db.Raw(`
		SELECT b.* FROM boardinfo b
		JOIN (
			SELECT contractName, MAX(time) AS latest
			FROM boardinfo GROUP BY contractName
		) x ON b.contractName = x.contractName AND b.time = x.latest
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	open := rows[:0]
	for _, row := range rows {
		if contract.IsOpen(row.ContractName, now) {
			open = append(open, row)
		}
	}
	return open, nil
}

// withWriteRetry runs op, retrying transient busy/locked failures with
// exponential backoff before giving up on this single write.
func (s *Storage) withWriteRetry(op func() error) error {
	backoff := retryBase
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		s.log.Warnf("Store busy (attempt %d/%d), backing off %v", attempt, retryAttempts, backoff)
		s.sleep(backoff)
		backoff = time.Duration(float64(backoff) * retryFactor)
		if backoff > retryCap {
			backoff = retryCap
		}
	}
	return &ContentionError{Attempts: retryAttempts, Err: err}
}

// isBusy reports whether err is transient lock contention.
func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
