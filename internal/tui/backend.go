package tui

import (
	"context"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/client"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/reconcile"
)

// Backend is the daemon surface the TUI drives. *client.Client satisfies it.
type Backend interface {
	Week(ctx context.Context, start calendar.Date) (*controlplane.WeekView, error)
	SyncStatus(ctx context.Context) (*client.SyncStatus, error)
	ForceSync(ctx context.Context) (reconcile.Report, error)
	CreateTask(ctx context.Context, t models.Task) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	AddCompletion(ctx context.Context, taskID string, date *calendar.Date) (models.Completion, error)
	RemoveCompletions(ctx context.Context, taskID string, date *calendar.Date) (int64, error)
}

var _ Backend = (*client.Client)(nil)
