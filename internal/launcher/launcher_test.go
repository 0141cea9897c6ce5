package launcher

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/notification"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/runs"
)

// The notification service announces launched runs.
var _ RunNotifier = (notification.Service)(nil)

type fakeTaskRepo struct {
	repository.TaskRepository
	task models.Task
	err  error
}

func (f *fakeTaskRepo) Get(tenantID, id string) (models.Task, error) {
	if f.err != nil {
		return models.Task{}, f.err
	}
	return f.task, nil
}

func TestLaunchRejectsDeletedTask(t *testing.T) {
	// Soft-deleted tasks read as not found; a stale cron entry firing
	// after its integration was removed must not create a run. The nil
	// run store would panic if the launcher got that far.
	tracker := runs.NewTracker(nil, nil, zerolog.Nop())
	l := New(&fakeTaskRepo{err: repository.ErrNotFound}, tracker, nil, nil, zerolog.Nop())

	_, err := l.Launch(context.Background(), "tenant-1", "task-1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
