package dashboard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/events"
	"github.com/scrutin/scrutin/internal/lock"
	"github.com/scrutin/scrutin/internal/metrics"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/surface"
)

// Publish makes the entity's current figures public and archives them.
func (s *Service) Publish(ctx context.Context, typ publication.EntityType, id string, actor publication.Actor) (publication.Record, error) {
	return s.mutate(ctx, typ, id, publication.ActionPublish, actor)
}

// Cancel withdraws published figures. Subordinate units go back to pending
// import unless the configuration says otherwise.
func (s *Service) Cancel(ctx context.Context, typ publication.EntityType, id string, actor publication.Actor) (publication.Record, error) {
	return s.mutate(ctx, typ, id, publication.ActionCancel, actor)
}

func (s *Service) mutate(ctx context.Context, typ publication.EntityType, id string, action publication.Action, actor publication.Actor) (publication.Record, error) {
	log := s.logger.With(
		zap.String("entity_type", string(typ)),
		zap.String("entity_id", id),
		zap.String("action", string(action)),
		zap.String("actor", actor.Name))

	var (
		next  publication.Record
		entry publication.HistoryEntry
	)
	err := lock.WithLock(ctx, s.locker, string(typ)+"/"+id, s.cfg.LockTTL(), func(ctx context.Context) error {
		e, err := s.load(ctx, typ, id)
		if err != nil {
			return err
		}

		next, entry, err = s.machine.Apply(e.record, e.node, action, actor)
		if err != nil {
			return err
		}

		if action == publication.ActionPublish {
			snap := &archive.Snapshot{
				ID:          archive.NewID(),
				EntityType:  typ,
				EntityID:    id,
				PublishedAt: entry.At,
				PublishedBy: actor.Name,
				Report:      surface.NewReport(e.node, &next, e.violations),
			}
			if err := s.archive.Save(ctx, snap); err != nil {
				return fmt.Errorf("archive %s %s: %w", typ, id, err)
			}
			entry.SnapshotRef = snap.ID
			next.History[len(next.History)-1] = entry
		}

		if err := s.store.Transition(ctx, e.record, next, entry); err != nil {
			return err
		}

		if action == publication.ActionCancel && s.cfg.ResetImportsOnCancel {
			n, err := s.store.ResetImports(ctx, e.hierarchy.Name, e.level, id)
			if err != nil {
				log.Error("reset imports after cancel", zap.Error(err))
			} else {
				log.Info("reset imports after cancel", zap.Int("units", n))
			}
		}
		return nil
	})

	if errors.Is(err, lock.ErrLockNotAcquired) {
		err = &publication.ConflictError{EntityType: typ, EntityID: id}
	}

	outcome := publication.OutcomeOf(next, err)
	code := outcome.Code
	if outcome.OK {
		code = "ok"
	}
	metrics.TransitionsTotal.WithLabelValues(string(typ), string(action), code).Inc()

	if err != nil {
		log.Info("transition refused", zap.String("code", code), zap.Error(err))
		return publication.Record{}, err
	}

	log.Info("transition committed",
		zap.String("from", string(entry.From)),
		zap.String("to", string(entry.To)),
		zap.String("snapshot", entry.SnapshotRef))

	if err := s.events.Publish(context.WithoutCancel(ctx), events.FromEntry(entry)); err != nil {
		log.Warn("publish transition event", zap.Error(err))
	}
	return next, nil
}
