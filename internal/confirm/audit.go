package confirm

import (
	"github.com/rs/zerolog"

	"mindrian/internal/storage"
	"mindrian/pkg/logger"
)

// AuditStore is the persistence used by StoreAudit. *storage.DB implements it.
type AuditStore interface {
	RecordConfirmationRequest(rec storage.ConfirmationRecord) error
	RecordConfirmationDecision(toolCallID, decision string) error
}

// StoreAudit writes confirmation lifecycle to the confirmations table.
type StoreAudit struct {
	store AuditStore
	log   zerolog.Logger
}

// NewStoreAudit creates an audit log backed by store.
func NewStoreAudit(store AuditStore) *StoreAudit {
	return &StoreAudit{store: store, log: logger.Component("confirm.audit")}
}

// LogRequest records a new request. Failures are logged, never returned.
func (a *StoreAudit) LogRequest(req *Request) {
	err := a.store.RecordConfirmationRequest(storage.ConfirmationRecord{
		ToolCallID: req.ToolCallID,
		SessionID:  req.SessionID,
		RunID:      req.RunID,
		ToolName:   req.ToolName,
		ToolArgs:   req.ToolArgs,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("tool_call_id", req.ToolCallID).Msg("Failed to record confirmation request")
	}
}

// LogDecision records the outcome.
func (a *StoreAudit) LogDecision(req *Request, result *Result) {
	if err := a.store.RecordConfirmationDecision(req.ToolCallID, string(result.Decision)); err != nil {
		a.log.Warn().Err(err).Str("tool_call_id", req.ToolCallID).Msg("Failed to record confirmation decision")
	}
}
