package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/pkg/redis"
)

func TestParseJobMessage(t *testing.T) {
	scheduled := time.Now().Add(time.Minute).UTC().Format(time.RFC3339Nano)
	msg := redis.StreamMessage{
		ID: "1-0",
		Payload: map[string]interface{}{
			"id":           "job-1",
			"org_id":       "org-1",
			"user_id":      "user-7",
			"type":         JobTypeMapData,
			"payload":      map[string]interface{}{"import_file_id": "file-1"},
			"scheduled_at": scheduled,
			"attempts":     float64(2),
		},
	}

	job, err := parseJobMessage(msg)

	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "org-1", job.OrgID)
	assert.Equal(t, "user-7", job.UserID)
	assert.Equal(t, JobTypeMapData, job.Type)
	assert.Equal(t, "file-1", job.Payload["import_file_id"])
	assert.False(t, job.ScheduledAt.IsZero())
	assert.Equal(t, 2, job.Attempts)
}

func TestParseJobMessage_MissingType(t *testing.T) {
	_, err := parseJobMessage(redis.StreamMessage{
		ID:      "1-0",
		Payload: map[string]interface{}{"id": "job-1"},
	})

	assert.ErrorIs(t, err, ErrUnknownJobType)
}
