// Package dashboard serves the operator dashboard: aggregated trees, entity
// reports, the filtered entity list and the publish and cancel mutations.
// Every read rebuilds the tree from stored unit rows.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/events"
	"github.com/scrutin/scrutin/internal/lock"
	"github.com/scrutin/scrutin/internal/metrics"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/config"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/results"
	"github.com/scrutin/scrutin/pkg/surface"
	"github.com/scrutin/scrutin/pkg/view"
)

var (
	// ErrUnknownHierarchy is returned for a hierarchy name that is not built in.
	ErrUnknownHierarchy = errors.New("unknown hierarchy")
	// ErrUnknownEntityType is returned for an entity type that cannot be published.
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// Tree is a freshly built hierarchy.
type Tree struct {
	Hierarchy string         `json:"hierarchy"`
	Root      results.Node   `json:"root"`
	Report    results.Report `json:"report"`
}

// Detail is the report of one entity plus the actions the caller may take.
type Detail struct {
	*surface.Report
	Allowed []publication.Action `json:"allowed"`
}

// Service orchestrates reads and publication mutations.
type Service struct {
	store   store.Store
	locker  lock.Locker
	archive *archive.Archive
	events  events.Publisher
	machine *publication.Machine
	cfg     config.DashboardConfig
	logger  *zap.Logger
}

// NewService creates a new dashboard Service.
func NewService(st store.Store, locker lock.Locker, arch *archive.Archive, pub events.Publisher, cfg config.DashboardConfig, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:   st,
		locker:  locker,
		archive: arch,
		events:  pub,
		machine: publication.NewMachine(),
		cfg:     cfg,
		logger:  logger,
	}
}

// Tree builds the named hierarchy with completion counts taken from the
// registered entities.
func (s *Service) Tree(ctx context.Context, hierarchyName string) (*Tree, error) {
	h, ok := results.HierarchyByName(hierarchyName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHierarchy, hierarchyName)
	}
	return s.build(ctx, h)
}

func (s *Service) build(ctx context.Context, h results.Hierarchy) (*Tree, error) {
	start := time.Now()

	rows, err := s.store.ListUnits(ctx, h.Name)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	expected := make(map[results.Level]map[string]int)
	for _, typ := range publication.EntityTypes {
		eh, level, _ := typ.Placement()
		if eh.Name != h.Name {
			continue
		}
		recs, err := s.store.ListRecords(ctx, typ)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", typ, err)
		}
		byID := make(map[string]int, len(recs))
		for _, rec := range recs {
			byID[rec.EntityID] = rec.ExpectedUnits
		}
		expected[level] = byID
	}

	completion := func(level results.Level, id string) (results.Completion, bool) {
		n, ok := expected[level][id]
		if !ok || n == 0 {
			return results.Completion{}, false
		}
		return results.Completion{Expected: n}, true
	}

	root, report := h.Build(rows, completion)
	metrics.AggregationDuration.WithLabelValues(h.Name).Observe(time.Since(start).Seconds())
	return &Tree{Hierarchy: h.Name, Root: root, Report: report}, nil
}

// entity is a publishable entity as currently stored: its aggregated node,
// its record and the violations found under it.
type entity struct {
	hierarchy  results.Hierarchy
	level      results.Level
	node       results.Node
	record     publication.Record
	violations []results.Violation
}

func (s *Service) load(ctx context.Context, typ publication.EntityType, id string) (*entity, error) {
	h, level, ok := typ.Placement()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, typ)
	}
	rec, err := s.store.GetRecord(ctx, typ, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", typ, id, err)
	}
	tree, err := s.build(ctx, h)
	if err != nil {
		return nil, err
	}
	node := nodeFor(tree.Root, level, rec)
	return &entity{
		hierarchy:  h,
		level:      level,
		node:       node,
		record:     rec,
		violations: violationsUnder(node, tree.Report.Violations),
	}, nil
}

// nodeFor finds the entity's node, or synthesizes an empty one for an
// entity that was registered but has no units yet.
func nodeFor(root results.Node, level results.Level, rec publication.Record) results.Node {
	node, ok := results.Find(root, level, rec.EntityID)
	return settle(root, level, rec, node, ok)
}

// settle fills the label of a found node. A missing node is synthesized
// with every candidate of the tree at zero votes.
func settle(root results.Node, level results.Level, rec publication.Record, node results.Node, found bool) results.Node {
	if !found {
		node = results.Aggregate(rec.EntityID, rec.Label, level, nil)
		node.Scores = results.WithCandidates(node.Scores, root.CandidateIDs())
		results.ApplyCompletion(&node, results.Completion{Expected: rec.ExpectedUnits})
	}
	if node.Label == "" {
		node.Label = rec.Label
	}
	return node
}

func violationsUnder(node results.Node, all []results.Violation) []results.Violation {
	if len(all) == 0 {
		return nil
	}
	leaves := make(map[string]bool)
	var walk func(n results.Node)
	walk = func(n results.Node) {
		if n.IsLeaf() {
			leaves[n.ID] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(node)

	var out []results.Violation
	for _, v := range all {
		if leaves[v.UnitID] {
			out = append(out, v)
		}
	}
	return out
}

// Entity returns the report of one entity and the actions actor may take.
func (s *Service) Entity(ctx context.Context, typ publication.EntityType, id string, actor publication.Actor) (*Detail, error) {
	e, err := s.load(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	allowed := publication.Allowed(e.record, e.node, actor)
	if allowed == nil {
		allowed = []publication.Action{}
	}
	return &Detail{
		Report:  surface.NewReport(e.node, &e.record, e.violations),
		Allowed: allowed,
	}, nil
}

// Entities returns every registered entity of a type with its node, in ID
// order.
func (s *Service) Entities(ctx context.Context, typ publication.EntityType) ([]view.Entity, error) {
	h, level, ok := typ.Placement()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, typ)
	}
	recs, err := s.store.ListRecords(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", typ, err)
	}
	tree, err := s.build(ctx, h)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]results.Node)
	for _, n := range results.Collect(tree.Root, level) {
		nodes[n.ID] = n
	}

	out := make([]view.Entity, 0, len(recs))
	for _, rec := range recs {
		n, ok := nodes[rec.EntityID]
		out = append(out, view.Entity{Node: settle(tree.Root, level, rec, n, ok), Record: rec})
	}
	return out, nil
}

// List returns one page of the filtered entity list. A page size of zero
// or less uses the configured default.
func (s *Service) List(ctx context.Context, typ publication.EntityType, f view.Filter, page, pageSize int) (view.Page, error) {
	entities, err := s.Entities(ctx, typ)
	if err != nil {
		return view.Page{}, err
	}
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}
	return view.Apply(entities, f, page, pageSize), nil
}

// Status returns the entity's publication record with its history.
func (s *Service) Status(ctx context.Context, typ publication.EntityType, id string) (publication.Record, error) {
	if _, _, ok := typ.Placement(); !ok {
		return publication.Record{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, typ)
	}
	rec, err := s.store.GetRecord(ctx, typ, id)
	if err != nil {
		return publication.Record{}, fmt.Errorf("get %s %s: %w", typ, id, err)
	}
	return rec, nil
}

// History returns the entity's transitions, oldest first.
func (s *Service) History(ctx context.Context, typ publication.EntityType, id string) ([]publication.HistoryEntry, error) {
	if _, err := s.Status(ctx, typ, id); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, typ, id)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", typ, id, err)
	}
	return entries, nil
}

// RegisterEntity records the label and the number of direct subordinate
// units expected for an entity.
func (s *Service) RegisterEntity(ctx context.Context, typ publication.EntityType, id, label string, expectedUnits int) (publication.Record, error) {
	if _, _, ok := typ.Placement(); !ok {
		return publication.Record{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, typ)
	}
	rec, err := s.store.RegisterEntity(ctx, publication.NewRecord(typ, id, label, expectedUnits, time.Now()))
	if err != nil {
		return publication.Record{}, fmt.Errorf("register %s %s: %w", typ, id, err)
	}
	s.logger.Info("registered entity",
		zap.String("entity_type", string(typ)),
		zap.String("entity_id", id),
		zap.Int("expected_units", rec.ExpectedUnits))
	return rec, nil
}

// Snapshot returns archived published figures of an entity.
func (s *Service) Snapshot(ctx context.Context, typ publication.EntityType, id, snapshotID string) (*archive.Snapshot, error) {
	if _, _, ok := typ.Placement(); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, typ)
	}
	return s.archive.Load(ctx, typ, id, snapshotID)
}
