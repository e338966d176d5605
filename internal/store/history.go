package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// SQLiteHistoryStore implements domain.HistoryStore against the ledger
// database's convert_history table. The SQLite profile (ProfileLedger,
// fsync-after-every-write) makes each Append durable before it returns,
// matching the "real money audit trail" requirement the teacher's
// database package was built around.
type SQLiteHistoryStore struct {
	db *DB
}

// NewSQLiteHistoryStore wraps an already-opened ledger DB.
func NewSQLiteHistoryStore(db *DB) *SQLiteHistoryStore {
	return &SQLiteHistoryStore{db: db}
}

// Append inserts one Convert outcome record.
func (s *SQLiteHistoryStore) Append(record domain.ConvertHistoryRecord) error {
	return WithTransaction(s.db.conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO convert_history (
				quote_id, order_id, from_token, to_token, ratio, inverse_ratio,
				from_amount, to_amount, score, expected_profit, prob_up,
				accepted, error_code, error_msg, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.QuoteID, nullIfEmpty(record.OrderID), record.FromToken, record.ToToken,
			record.Ratio, record.InverseRatio, record.FromAmount, record.ToAmount,
			record.Score, record.ExpectedProfit, record.ProbUp, record.Accepted,
			nullIfEmpty(record.ErrorCode), nullIfEmpty(record.ErrorMsg), record.Timestamp,
		)
		return err
	})
}

// Recent returns the most recent limit records, newest first.
func (s *SQLiteHistoryStore) Recent(limit int) ([]domain.ConvertHistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.conn.Query(`
		SELECT quote_id, order_id, from_token, to_token, ratio, inverse_ratio,
		       from_amount, to_amount, score, expected_profit, prob_up,
		       accepted, error_code, error_msg, timestamp
		FROM convert_history
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query convert history: %w", err)
	}
	defer rows.Close()

	var records []domain.ConvertHistoryRecord
	for rows.Next() {
		var rec domain.ConvertHistoryRecord
		var orderID, errorCode, errorMsg sql.NullString
		if err := rows.Scan(
			&rec.QuoteID, &orderID, &rec.FromToken, &rec.ToToken, &rec.Ratio, &rec.InverseRatio,
			&rec.FromAmount, &rec.ToAmount, &rec.Score, &rec.ExpectedProfit, &rec.ProbUp,
			&rec.Accepted, &errorCode, &errorMsg, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan convert history row: %w", err)
		}
		rec.OrderID = orderID.String
		rec.ErrorCode = errorCode.String
		rec.ErrorMsg = errorMsg.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ExportJSON renders the most recent limit records as the canonical
// persisted-state list-of-records format.
func (s *SQLiteHistoryStore) ExportJSON(limit int) ([]byte, error) {
	records, err := s.Recent(limit)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(records, "", "  ")
}

// ExportMsgpack renders the most recent limit records in the compact
// binary backup format internal/backup ships to cold storage alongside
// the JSON export.
func (s *SQLiteHistoryStore) ExportMsgpack(limit int) ([]byte, error) {
	records, err := s.Recent(limit)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(records)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ domain.HistoryStore = (*SQLiteHistoryStore)(nil)
