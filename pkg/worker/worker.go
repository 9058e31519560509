// Package worker binds the pipeline stages to the job queue. Raw
// saving is the one stage that never runs here: it consumes the
// uploaded file, so it runs inline on the HTTP request that carries it.
package worker

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/sedum/pkg/importer"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
)

// RegisterHandlers wires the import pipeline's job types onto the
// processor.
func RegisterHandlers(p *queue.Processor, service *importer.Service) {
	p.Register(queue.JobTypeMapData, fileHandler(service.MapData))
	p.Register(queue.JobTypeMatchBuildings, fileHandler(service.MatchBuildings))
	p.Register(queue.JobTypeRemapData, fileHandler(service.RemapData))
	p.Register(queue.JobTypeDeleteBuildings, func(ctx context.Context, job *redis.JobMessage) error {
		orgID, err := payloadString(job, "org_id")
		if err != nil {
			return err
		}
		_, err = service.DeleteOrganizationBuildings(ctx, orgID, job.UserID)
		return err
	})
}

// fileHandler adapts a stage method keyed by import file id into a
// queue handler.
func fileHandler(stage func(ctx context.Context, importFileID, userID string) (models.JobStatus, error)) queue.Handler {
	return func(ctx context.Context, job *redis.JobMessage) error {
		importFileID, err := payloadString(job, "import_file_id")
		if err != nil {
			return err
		}
		_, err = stage(ctx, importFileID, job.UserID)
		return err
	}
}

func payloadString(job *redis.JobMessage, key string) (string, error) {
	value, ok := job.Payload[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("job %s missing %s", job.ID, key)
	}
	return value, nil
}
