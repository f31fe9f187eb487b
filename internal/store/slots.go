package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/familydash/internal/broadcast"
	"github.com/fentz26/familydash/internal/models"
	"github.com/google/uuid"
)

// --- Broadcast Operations ---

var _ broadcast.Channel = (*Store)(nil)

// Put writes a broadcast slot, replacing any slot with the same key.
func (s *Store) Put(ctx context.Context, slot broadcast.Slot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_slots (key, type, source, payload, created_ns) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET type = excluded.type, source = excluded.source,
		 payload = excluded.payload, created_ns = excluded.created_ns`,
		slot.Key, slot.Type, slot.Source, slot.Payload, slot.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

// Delete removes the slot at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM broadcast_slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// Since returns slots created after t, oldest first.
func (s *Store) Since(ctx context.Context, t time.Time) ([]broadcast.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, type, source, payload, created_ns FROM broadcast_slots WHERE created_ns > ? ORDER BY created_ns, key`,
		t.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var out []broadcast.Slot
	for rows.Next() {
		var slot broadcast.Slot
		var ns int64
		if err := rows.Scan(&slot.Key, &slot.Type, &slot.Source, &slot.Payload, &ns); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, slot)
	}
	return out, rows.Err()
}

// PruneSlots removes slots created before cutoff. Slots normally delete
// themselves; this clears those left by a process that exited early.
func (s *Store) PruneSlots(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM broadcast_slots WHERE created_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune slots: %w", err)
	}
	return result.RowsAffected()
}

// --- Audit Operations ---

// WriteAudit writes an audit record.
func (s *Store) WriteAudit(action, inputsHash, outcome, taskID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO audit_log (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, nullString(entry.TaskID), entry.Details, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	return entry, nil
}

// ListAudit returns the most recent audit records, newest first. A
// non-empty taskID restricts the result to that task.
func (s *Store) ListAudit(taskID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, inputs_hash, outcome, COALESCE(task_id, ''), COALESCE(details, ''), timestamp FROM audit_log`
	args := []any{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &e.TaskID, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
