package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/models"
)

func TestScheduleSpecInterval(t *testing.T) {
	spec, err := ScheduleSpec(models.Task{FetchMode: models.FetchModeInterval, FetchIntervalMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "@every 30m", spec)

	_, err = ScheduleSpec(models.Task{FetchMode: models.FetchModeInterval, FetchIntervalMinutes: 3})
	assert.Error(t, err)
	_, err = ScheduleSpec(models.Task{FetchMode: models.FetchModeInterval, FetchIntervalMinutes: 2000})
	assert.Error(t, err)
}

func TestScheduleSpecDaily(t *testing.T) {
	spec, err := ScheduleSpec(models.Task{FetchMode: models.FetchModeDaily, FetchDailyAt: "06:30"})
	require.NoError(t, err)
	assert.Equal(t, "30 6 * * *", spec)

	for _, bad := range []string{"", "25:00", "12:61", "noon", "12"} {
		_, err := ScheduleSpec(models.Task{FetchMode: models.FetchModeDaily, FetchDailyAt: bad})
		assert.Error(t, err, bad)
	}
}

func TestScheduleSpecCron(t *testing.T) {
	spec, err := ScheduleSpec(models.Task{FetchMode: models.FetchModeCron, CronExpression: "*/15 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", spec)

	_, err = ScheduleSpec(models.Task{FetchMode: models.FetchModeCron, CronExpression: "not a cron"})
	assert.Error(t, err)
}

func TestScheduleSpecManualNotSchedulable(t *testing.T) {
	_, err := ScheduleSpec(models.Task{FetchMode: models.FetchModeManual})
	assert.Error(t, err)
}

func TestValidateCronExpression(t *testing.T) {
	assert.NoError(t, ValidateCronExpression("0 4 * * 1"))
	assert.NoError(t, ValidateCronExpression("@hourly"))
	assert.Error(t, ValidateCronExpression("61 * * * *"))
}
