// Package audit records decision entries for state-mutating actions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/familydash/internal/models"
)

// Writer persists audit entries.
type Writer interface {
	WriteAudit(action, inputsHash, outcome, taskID, details string) (*models.AuditEntry, error)
}

// Recorder hashes the inputs of an action and writes the entry.
type Recorder struct {
	w Writer
}

// NewRecorder creates a recorder backed by w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w}
}

// Record writes an entry for a state-mutating action.
func (r *Recorder) Record(action string, inputs any, outcome, taskID, details string) (*models.AuditEntry, error) {
	return r.w.WriteAudit(action, HashInputs(inputs), outcome, taskID, details)
}

// HashInputs returns the SHA-256 of the JSON encoding of inputs.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
