package data

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-belt/model"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"
)

// sqliteService stores the same records as filesDBService, one row per
// record with the JSON document in the payload column.
type sqliteService struct {
	conn *sql.DB
	mu   sync.Mutex
}

func NewSQLite(path string) (IService, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, xerrors.Errorf("create sqlite folder: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, xerrors.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	svc := &sqliteService{conn: conn}
	if err := svc.migrate(); err != nil {
		conn.Close()
		return nil, xerrors.Errorf("migrate database: %w", err)
	}
	return svc, nil
}

func (svc *sqliteService) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);
	`

	_, err := svc.conn.Exec(schema)
	return err
}

func (svc *sqliteService) NewError(err interface{}) error {
	rec := toErrorRecord(err, time.Now().Unix())
	return svc.insert(errorsEntity, rec.Timestamp, rec)
}

func (svc *sqliteService) NewSourceStats(stats model.SourceStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert(sourceStatsEntity, stats.Timestamp, stats)
}

func (svc *sqliteService) NewOrchestratorStats(stats model.OrchestratorStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert(orchestratorStatsEntity, stats.Timestamp, stats)
}

func (svc *sqliteService) NewPublisherStats(stats model.PublisherStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert(publisherStatsEntity, stats.Timestamp, stats)
}

func (svc *sqliteService) RetrieveErrors() ([]ErrorRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	rows, err := svc.conn.Query(`SELECT payload FROM records WHERE kind = ? ORDER BY id`, errorsEntity)
	if err != nil {
		return nil, xerrors.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	records := []ErrorRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, xerrors.Errorf("scan error record: %w", err)
		}
		var rec ErrorRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, xerrors.Errorf("unmarshal error record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (svc *sqliteService) Close() error {
	return svc.conn.Close()
}

func (svc *sqliteService) insert(kind string, timestamp int64, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("marshal %s: %w", kind, err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, err := svc.conn.Exec(`INSERT INTO records (kind, timestamp, payload) VALUES (?, ?, ?)`, kind, timestamp, string(payload)); err != nil {
		return xerrors.Errorf("insert %s: %w", kind, err)
	}
	return nil
}
