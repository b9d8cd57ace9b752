// Package sqlite persists per-pass classification history so confidence
// trends and volume shifts can be compared across passes. The taxonomy
// itself is never written here; it is read-only configuration.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"topiclens/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at      DATETIME NOT NULL,
		finished_at     DATETIME,
		window_from     DATETIME,
		window_to       DATETIME,
		record_count    INTEGER DEFAULT 0,
		classified      INTEGER DEFAULT 0,
		unclassifiable  INTEGER DEFAULT 0,
		inference_calls INTEGER DEFAULT 0,
		input_tokens    INTEGER DEFAULT 0,
		output_tokens   INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS classifications (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id         INTEGER NOT NULL,
		conversation_id TEXT NOT NULL,
		tier1           TEXT NOT NULL,
		confidence      REAL NOT NULL,
		method          TEXT NOT NULL,
		sub_labels      TEXT DEFAULT '[]',
		classified_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_pass ON classifications(pass_id);
	CREATE INDEX IF NOT EXISTS idx_classifications_tier1 ON classifications(tier1);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// BeginPass records the start of an analysis pass and returns its ID.
func BeginPass(db *sql.DB, startedAt, windowFrom, windowTo time.Time) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO passes (started_at, window_from, window_to) VALUES (?, ?, ?)`,
		startedAt, windowFrom, windowTo,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishPass closes out a pass with its final counters.
func FinishPass(db *sql.DB, passID int64, finishedAt time.Time, recordCount, classified, unclassifiable, inferenceCalls int, inputTokens, outputTokens int64) error {
	_, err := db.Exec(
		`UPDATE passes SET finished_at = ?, record_count = ?, classified = ?, unclassifiable = ?,
		 inference_calls = ?, input_tokens = ?, output_tokens = ? WHERE id = ?`,
		finishedAt, recordCount, classified, unclassifiable, inferenceCalls, inputTokens, outputTokens, passID,
	)
	return err
}

// InsertClassifications stores one pass's results in a single transaction.
func InsertClassifications(db *sql.DB, passID int64, results []domain.Result) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO classifications (pass_id, conversation_id, tier1, confidence, method, sub_labels, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		subLabels, err := json.Marshal(r.SubLabels)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(passID, r.ConversationID, r.Tier1, r.Confidence, string(r.Method), string(subLabels), r.ClassifiedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetClassifications returns one pass's stored results.
func GetClassifications(db *sql.DB, passID int64) ([]domain.Result, error) {
	rows, err := db.Query(
		`SELECT conversation_id, tier1, confidence, method, sub_labels, classified_at
		 FROM classifications WHERE pass_id = ? ORDER BY id`,
		passID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		var r domain.Result
		var method, subLabels string
		if err := rows.Scan(&r.ConversationID, &r.Tier1, &r.Confidence, &method, &subLabels, &r.ClassifiedAt); err != nil {
			return nil, err
		}
		r.Method = domain.DetectionMethod(method)
		if subLabels != "" && subLabels != "[]" {
			if err := json.Unmarshal([]byte(subLabels), &r.SubLabels); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type ConfidenceStats struct {
	Total         int
	AvgConfidence float64
	BucketBelow50 int
	Bucket50to70  int
	Bucket70to90  int
	Bucket90Plus  int
}

// GetConfidenceStats buckets one pass's confidences for trend reporting.
func GetConfidenceStats(db *sql.DB, passID int64) (ConfidenceStats, error) {
	var stats ConfidenceStats
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(CASE WHEN confidence < 0.5 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.5 AND confidence < 0.7 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.7 AND confidence < 0.9 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.9 THEN 1 ELSE 0 END), 0)
		 FROM classifications WHERE pass_id = ?`,
		passID,
	).Scan(&stats.Total, &stats.AvgConfidence, &stats.BucketBelow50, &stats.Bucket50to70, &stats.Bucket70to90, &stats.Bucket90Plus)
	return stats, err
}

// CountByMethod tallies a pass's results by detection method, so reporting
// can distinguish full classifications from fallbacks.
func CountByMethod(db *sql.DB, passID int64) (map[domain.DetectionMethod]int, error) {
	rows, err := db.Query(
		`SELECT method, COUNT(*) FROM classifications WHERE pass_id = ? GROUP BY method`,
		passID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.DetectionMethod]int)
	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, err
		}
		out[domain.DetectionMethod(method)] = count
	}
	return out, rows.Err()
}
