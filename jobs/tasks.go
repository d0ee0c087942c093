package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeApprovalMail is the task type for approval decision emails.
	TaskTypeApprovalMail = "mail:approval"
	// TaskTypeBackupSnapshot is the task type for scheduled database snapshots.
	TaskTypeBackupSnapshot = "backup:snapshot"
)

// ApprovalMailPayload describes an approval decision to notify about.
type ApprovalMailPayload struct {
	Module   string `json:"module"`
	DocNo    string `json:"doc_no"`
	Decision string `json:"decision"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason,omitempty"`
}

// NewApprovalMailTask constructs an Asynq task for the payload.
func NewApprovalMailTask(payload ApprovalMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeApprovalMail, data), nil
}

// Mailer delivers approval decision notifications through the
// configured SMTP relay.
type Mailer struct {
	addr   string
	from   string
	logger *slog.Logger
}

// NewMailer constructs a Mailer for the given relay endpoint.
func NewMailer(host string, port int, from string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from, logger: logger}
}

// HandleApprovalMail processes TaskTypeApprovalMail tasks.
func (m *Mailer) HandleApprovalMail(ctx context.Context, t *asynq.Task) error {
	var payload ApprovalMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder delivery: integrate with SMTP/Mailpit in phase 2.
	m.logger.Info("approval mail",
		slog.String("relay", m.addr),
		slog.String("from", m.from),
		slog.String("module", payload.Module),
		slog.String("doc", payload.DocNo),
		slog.String("decision", payload.Decision))
	return nil
}

// NewBackupSnapshotTask constructs the scheduled snapshot task. The
// task carries no payload; the handler reads its configuration from the
// job it was registered with.
func NewBackupSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskTypeBackupSnapshot, nil)
}
