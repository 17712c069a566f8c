package db

import (
	"database/sql"
	"fmt"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Audit log queries. The table is append-only: there is deliberately no
// UPDATE or DELETE statement for it anywhere in this package.
const (
	sqlInsertAuditEntry = `INSERT INTO audit_log(id, timestamp, actor_type, actor_id, action, target, details, checksum, prev_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectLatestAuditEntry = `SELECT id, timestamp, actor_type, actor_id, action, target, details, checksum, prev_checksum
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT 1`

	sqlSelectAuditEntriesOrdered = `SELECT id, timestamp, actor_type, actor_id, action, target, details, checksum, prev_checksum
		FROM audit_log ORDER BY timestamp ASC, id ASC`
)

// InsertAuditEntry appends one chained entry. Entries without a
// checksum are refused; a gap in the chain must stay a gap, never a
// fabricated link.
func (db *DB) InsertAuditEntry(entry *domain.AuditLogEntry) error {
	if entry.Checksum == "" {
		return fmt.Errorf("audit entry has no checksum")
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAuditEntry,
			entry.Id.String(),
			entry.Timestamp,
			entry.ActorType,
			entry.ActorId,
			entry.Action,
			entry.Target,
			entry.Details,
			entry.Checksum,
			entry.PrevChecksum,
		)
		return err
	})
}

// ReadLatestAuditEntry returns the chain head, or nil for an empty log.
func (db *DB) ReadLatestAuditEntry() (error, *domain.AuditLogEntry) {
	row := db.db.QueryRow(sqlSelectLatestAuditEntry)
	err, entry := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return err, entry
}

// ReadAuditEntriesOrdered returns the full log in chain order.
func (db *DB) ReadAuditEntriesOrdered() (error, *[]domain.AuditLogEntry) {
	rows, err := db.db.Query(sqlSelectAuditEntriesOrdered)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		err, entry := scanAuditEntry(rows)
		if err != nil {
			return err, &entries
		}
		entries = append(entries, *entry)
	}
	if err = rows.Err(); err != nil {
		return err, &entries
	}
	return nil, &entries
}

func scanAuditEntry(row rowScanner) (error, *domain.AuditLogEntry) {
	var entry domain.AuditLogEntry
	var idStr string
	err := row.Scan(
		&idStr,
		&entry.Timestamp,
		&entry.ActorType,
		&entry.ActorId,
		&entry.Action,
		&entry.Target,
		&entry.Details,
		&entry.Checksum,
		&entry.PrevChecksum,
	)
	if err != nil {
		return err, nil
	}
	entry.Id, _ = uuid.Parse(idStr)
	return nil, &entry
}
