// Package ingestion imports already-parsed unit rows: it rejects malformed
// rows, reports non-fatal violations, marks accepted units imported and
// creates publication records for entities it has not seen before.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/metrics"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/config"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
)

var (
	// ErrUnknownHierarchy is returned for a hierarchy name that is not built in.
	ErrUnknownHierarchy = errors.New("unknown hierarchy")
	// ErrBatchTooLarge is returned when a batch exceeds ingestion.max_rows.
	ErrBatchTooLarge = errors.New("batch too large")
)

// EntityRef names a publishable entity.
type EntityRef struct {
	Type  publication.EntityType `json:"type"`
	ID    string                 `json:"id"`
	Label string                 `json:"label,omitempty"`
}

// Result summarizes one imported batch.
type Result struct {
	Hierarchy   string                    `json:"hierarchy"`
	Accepted    int                       `json:"accepted"`
	Rejected    []*results.DataShapeError `json:"rejected,omitempty"`
	Violations  []results.Violation       `json:"violations,omitempty"`
	NewEntities []EntityRef               `json:"new_entities,omitempty"`
}

// Service imports unit rows.
type Service struct {
	units   store.UnitStore
	records store.PublicationStore
	cfg     config.IngestionConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new ingestion Service.
func NewService(units store.UnitStore, records store.PublicationStore, cfg config.IngestionConfig, logger *zap.Logger) *Service {
	return &Service{
		units:   units,
		records: records,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ImportBatch validates rows against the named hierarchy and stores the
// accepted ones. Rejected rows are returned in the result and never stored.
func (s *Service) ImportBatch(ctx context.Context, hierarchyName string, rows []results.UnitRow) (*Result, error) {
	h, ok := results.HierarchyByName(hierarchyName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHierarchy, hierarchyName)
	}
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(rows), s.cfg.MaxRows)
	}

	log := s.logger.With(zap.String("hierarchy", h.Name), zap.Int("rows", len(rows)))
	accepted, report := h.Validate(rows)

	for _, rej := range report.Rejected {
		metrics.UnitsRejectedTotal.WithLabelValues(h.Name, rej.Field).Inc()
		log.Warn("rejected unit row", zap.String("unit_id", rej.UnitID), zap.String("field", rej.Field), zap.String("reason", rej.Reason))
	}
	for _, v := range report.Violations {
		metrics.ViolationsTotal.WithLabelValues(h.Name, string(v.Kind)).Inc()
		log.Warn("invariant violation", zap.String("unit_id", v.UnitID), zap.String("kind", string(v.Kind)), zap.String("summary", v.Summary))
	}

	res := &Result{
		Hierarchy:  h.Name,
		Accepted:   len(accepted),
		Rejected:   report.Rejected,
		Violations: report.Violations,
	}
	if len(accepted) == 0 {
		return res, nil
	}

	if err := s.units.UpsertUnits(ctx, h.Name, accepted); err != nil {
		return nil, fmt.Errorf("store units: %w", err)
	}
	metrics.UnitsImportedTotal.WithLabelValues(h.Name).Add(float64(len(accepted)))

	created, err := s.ensureRecords(ctx, h, accepted)
	if err != nil {
		return nil, err
	}
	res.NewEntities = created

	log.Info("imported units", zap.Int("accepted", res.Accepted), zap.Int("rejected", len(res.Rejected)), zap.Int("new_entities", len(created)))
	return res, nil
}

// ensureRecords creates a NOT_PUBLISHED record for every publishable
// ancestor of the rows that has none yet.
func (s *Service) ensureRecords(ctx context.Context, h results.Hierarchy, rows []results.UnitRow) ([]EntityRef, error) {
	seen := make(map[EntityRef]bool)
	var created []EntityRef
	now := s.now()

	for _, row := range rows {
		for _, level := range h.Levels {
			typ, ok := publication.EntityTypeFor(level)
			if !ok {
				continue
			}
			ref := row.Ancestors[level]
			key := EntityRef{Type: typ, ID: ref.ID}
			if seen[key] {
				continue
			}
			seen[key] = true

			_, isNew, err := s.records.EnsureRecord(ctx, publication.NewRecord(typ, ref.ID, ref.Label, 0, now))
			if err != nil {
				return nil, fmt.Errorf("ensure record %s %s: %w", typ, ref.ID, err)
			}
			if isNew {
				created = append(created, EntityRef{Type: typ, ID: ref.ID, Label: ref.Label})
			}
		}
	}
	return created, nil
}
