// Package database persists periodic node health snapshots to SQLite so
// operators can inspect load history after the fact. Recording is optional;
// the orchestration core never depends on it.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/latoulicious/Yotei/pkg/lavalink"
)

// StatsStore records node stats snapshots
type StatsStore struct {
	db *sql.DB
}

// StatsRow is one recorded snapshot
type StatsRow struct {
	ID             int64
	NodeName       string
	Players        int
	PlayingPlayers int
	SystemLoad     float64
	MemoryUsed     int64
	FrameDeficit   int
	FrameNulled    int
	Penalty        int
	RecordedAt     time.Time
}

// NewStatsStore opens (or creates) the stats database at dbPath
func NewStatsStore(dbPath string) (*StatsStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %v", err)
	}

	if err := initStatsTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize stats database: %v", err)
	}

	return &StatsStore{db: db}, nil
}

func initStatsTable(db *sql.DB) error {
	createStatsTable := `
	CREATE TABLE IF NOT EXISTS node_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_name TEXT NOT NULL,
		players INTEGER NOT NULL,
		playing_players INTEGER NOT NULL,
		system_load REAL NOT NULL,
		memory_used INTEGER NOT NULL,
		frame_deficit INTEGER NOT NULL,
		frame_nulled INTEGER NOT NULL,
		penalty INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_node_stats_name_time ON node_stats(node_name, recorded_at);
	`

	_, err := db.Exec(createStatsTable)
	return err
}

// Record stores one snapshot for a node. A node without a snapshot yet is
// recorded with zero values so gaps stay visible.
func (s *StatsStore) Record(nodeName string, stats *lavalink.NodeStats, penalty int) error {
	if stats == nil {
		stats = &lavalink.NodeStats{}
	}

	_, err := s.db.Exec(`
		INSERT INTO node_stats
			(node_name, players, playing_players, system_load, memory_used, frame_deficit, frame_nulled, penalty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nodeName,
		stats.Players,
		stats.PlayingPlayers,
		stats.CPU.SystemLoad,
		stats.Memory.Used,
		stats.Frames.Deficit,
		stats.Frames.Nulled,
		penalty,
	)
	if err != nil {
		return fmt.Errorf("failed to record stats for node %s: %v", nodeName, err)
	}
	return nil
}

// Recent returns up to limit snapshots for a node, newest first
func (s *StatsStore) Recent(nodeName string, limit int) ([]StatsRow, error) {
	rows, err := s.db.Query(`
		SELECT id, node_name, players, playing_players, system_load, memory_used, frame_deficit, frame_nulled, penalty, recorded_at
		FROM node_stats
		WHERE node_name = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, nodeName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for node %s: %v", nodeName, err)
	}
	defer rows.Close()

	var result []StatsRow
	for rows.Next() {
		var row StatsRow
		if err := rows.Scan(
			&row.ID, &row.NodeName, &row.Players, &row.PlayingPlayers,
			&row.SystemLoad, &row.MemoryUsed, &row.FrameDeficit, &row.FrameNulled,
			&row.Penalty, &row.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %v", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Prune deletes snapshots older than the retention window
func (s *StatsStore) Prune(retention time.Duration) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM node_stats WHERE recorded_at < ?`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune stats: %v", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *StatsStore) Close() error {
	return s.db.Close()
}
