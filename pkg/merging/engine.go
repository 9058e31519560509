// Package merging applies match outcomes to the canonical building
// population: merging snapshots into existing canonicals and promoting
// unmatched snapshots to new ones.
package merging

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/internal/repositories/canonical"
	"github.com/Ramsey-B/sedum/internal/repositories/snapshot"
	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/kafka"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// EventPublisher emits building lifecycle events after state changes
// commit. Emission is best effort; a publish failure is logged by the
// producer and never fails the merge.
type EventPublisher interface {
	PublishBuildingEvent(ctx context.Context, event *kafka.BuildingEvent) error
}

// Engine handles snapshot merging and canonical promotion.
type Engine struct {
	logger      ectologger.Logger
	snapshots   *snapshot.Repository
	canonicals  *canonical.Repository
	fieldMerger *FieldMerger
	events      EventPublisher
	auditor     audit.Sink
}

// NewEngine creates a new merge engine.
func NewEngine(
	logger ectologger.Logger,
	snapshots *snapshot.Repository,
	canonicals *canonical.Repository,
	events EventPublisher,
	auditor audit.Sink,
) *Engine {
	return &Engine{
		logger:      logger,
		snapshots:   snapshots,
		canonicals:  canonicals,
		fieldMerger: NewFieldMerger(),
		events:      events,
		auditor:     auditor,
	}
}

// Merge folds a snapshot into the canonical building that canonicalSnap
// currently represents. A child snapshot with both parents is created
// and becomes the canonical building's active snapshot. When the
// incoming snapshot already belonged to a different canonical building,
// that building is deactivated; its lineage continues under the target.
func (e *Engine) Merge(ctx context.Context, snap, canonicalSnap *models.BuildingSnapshot, confidence float64, matchType models.MatchType, userID string) (*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	if canonicalSnap.CanonicalBuildingID == nil {
		return nil, fmt.Errorf("snapshot %s is not linked to a canonical building", canonicalSnap.ID)
	}
	canonicalID := *canonicalSnap.CanonicalBuildingID

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id":       snap.OrgID,
		"snapshot_id":  snap.ID,
		"canonical_id": canonicalID,
		"confidence":   confidence,
		"match_type":   matchType,
	})

	ctxTx, tx, err := e.snapshots.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	child := e.fieldMerger.Merge(canonicalSnap, snap)
	child.Parent1ID = &canonicalSnap.ID
	child.Parent2ID = &snap.ID
	child.CanonicalBuildingID = &canonicalID
	child.Confidence = &confidence
	mt := matchType
	child.MatchType = &mt

	created, err := e.snapshots.Create(ctxTx, child)
	if err != nil {
		return nil, err
	}

	if err := e.snapshots.SetCanonical(ctxTx, snap.ID, canonicalID, &confidence, &mt); err != nil {
		return nil, err
	}
	if err := e.snapshots.IncrementChildren(ctxTx, []string{canonicalSnap.ID, snap.ID}); err != nil {
		return nil, err
	}
	if err := e.canonicals.Repoint(ctxTx, canonicalID, created.ID); err != nil {
		return nil, err
	}

	// An exact-match chain can bridge two canonical buildings. The
	// snapshot's previous canonical is superseded by the target.
	if snap.CanonicalBuildingID != nil && *snap.CanonicalBuildingID != canonicalID {
		if err := e.canonicals.Deactivate(ctxTx, *snap.CanonicalBuildingID); err != nil {
			return nil, err
		}
		log.WithField("superseded_canonical_id", *snap.CanonicalBuildingID).Info("Deactivated superseded canonical building")
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.WithField("child_snapshot_id", created.ID).Debug("Merged snapshot into canonical building")

	if e.events != nil {
		e.events.PublishBuildingEvent(ctx, &kafka.BuildingEvent{
			EventType:   "merged",
			OrgID:       snap.OrgID,
			CanonicalID: canonicalID,
			SnapshotID:  created.ID,
			Confidence:  &confidence,
			MatchType:   string(matchType),
		})
	}
	e.auditor.Record(ctx, audit.Entry{
		OrgID:   snap.OrgID,
		ActorID: userID,
		Subject: canonicalID,
		Action:  audit.ActionSnapshotMerged,
		Note:    fmt.Sprintf("snapshot %s merged with confidence %.2f", snap.ID, confidence),
	})

	return created, nil
}

// Promote creates a new canonical building with the snapshot as its
// active record.
func (e *Engine) Promote(ctx context.Context, snap *models.BuildingSnapshot, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Promote")
	defer span.End()

	ctxTx, tx, err := e.canonicals.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	created, err := e.canonicals.Create(ctxTx, &models.CanonicalBuilding{
		OrgID:               snap.OrgID,
		CanonicalSnapshotID: snap.ID,
		Active:              true,
	})
	if err != nil {
		return err
	}

	if err := e.snapshots.SetCanonical(ctxTx, snap.ID, created.ID, nil, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return err
	}

	snap.CanonicalBuildingID = &created.ID

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"org_id":       snap.OrgID,
		"snapshot_id":  snap.ID,
		"canonical_id": created.ID,
	}).Debug("Promoted snapshot to canonical building")

	if e.events != nil {
		e.events.PublishBuildingEvent(ctx, &kafka.BuildingEvent{
			EventType:   "promoted",
			OrgID:       snap.OrgID,
			CanonicalID: created.ID,
			SnapshotID:  snap.ID,
		})
	}
	e.auditor.Record(ctx, audit.Entry{
		OrgID:   snap.OrgID,
		ActorID: userID,
		Subject: created.ID,
		Action:  audit.ActionBuildingPromoted,
		Note:    fmt.Sprintf("snapshot %s promoted", snap.ID),
	})

	return nil
}
