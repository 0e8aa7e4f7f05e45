package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"leadpilot/models"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	job, err := store.Create(ctx, "https://maps.example/search")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobRunning, job.Status)

	require.NoError(t, store.AppendLead(ctx, job.ID, models.Lead{Name: "A"}))
	require.NoError(t, store.AppendEvent(ctx, job.ID, models.JobEvent{Type: models.EventStatus, Message: "start"}))
	require.NoError(t, store.AppendEvent(ctx, job.ID, models.JobEvent{Type: models.EventLead, Count: 1}))
	require.NoError(t, store.Update(ctx, job.ID, models.JobDone, ""))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, got.Status)
	require.Len(t, got.Leads, 1)

	// Returned jobs are copies
	got.Leads[0].Name = "changed"
	again, _ := store.Get(ctx, job.ID)
	assert.Equal(t, "A", again.Leads[0].Name)

	events, err := store.Events(ctx, job.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.Events(ctx, job.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventLead, events[0].Type)

	events, err = store.Events(ctx, job.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryJobStoreUnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.Update(ctx, "missing", models.JobError, "x"), ErrJobNotFound)
	assert.ErrorIs(t, store.AppendLead(ctx, "missing", models.Lead{}), ErrJobNotFound)
	_, err = store.Events(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
