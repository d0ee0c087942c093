package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestApprovalMailTaskRoundTrip(t *testing.T) {
	task, err := NewApprovalMailTask(ApprovalMailPayload{
		Module:   "REQUISITION",
		DocNo:    "001-26",
		Decision: "APPROVED",
		Actor:    "Jamie Reyes",
	})
	require.NoError(t, err)
	require.Equal(t, TaskTypeApprovalMail, task.Type())

	var payload ApprovalMailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "001-26", payload.DocNo)
	require.Equal(t, "APPROVED", payload.Decision)
}

func TestMailerHandlesApprovalMail(t *testing.T) {
	mailer := NewMailer("127.0.0.1", 1025, "no-reply@procura.local", slog.New(slog.NewTextHandler(io.Discard, nil)))

	task, err := NewApprovalMailTask(ApprovalMailPayload{Module: "REQUISITION", DocNo: "001-26", Decision: "REJECTED", Reason: "no funds"})
	require.NoError(t, err)
	require.NoError(t, mailer.HandleApprovalMail(context.Background(), task))

	// A garbled payload is dropped rather than retried.
	err = mailer.HandleApprovalMail(context.Background(), asynq.NewTask(TaskTypeApprovalMail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
