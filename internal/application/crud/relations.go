package crud

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/domain/event"
)

// GetRelatedSingle returns the record a single relation points at. A missing
// parent, an unset relation or a dangling reference all yield errs.ErrNotFound.
func (s *Service) GetRelatedSingle(ctx context.Context, id, relation string) (rec *entity.Record, err error) {
	defer s.observe("get_related", time.Now(), &err)

	rel, err := s.relation(relation, entity.One)
	if err != nil {
		return nil, err
	}
	parent, err := s.query.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	refID, ok := parent.Ref(rel.Name)
	if !ok {
		return nil, fmt.Errorf("%s %q has no %s: %w", s.schema.Name, id, rel.Name, errs.ErrNotFound)
	}
	return s.composer(rel).GetByID(ctx, refID)
}

// ListRelated lists the children of id in a Many relation. The parent is not
// required to exist; an unknown parent has no children.
func (s *Service) ListRelated(
	ctx context.Context,
	id, relation string,
	args FindManyArgs,
) (records []*entity.Record, err error) {
	defer s.observe("list_related", time.Now(), &err)

	rel, err := s.relation(relation, entity.Many)
	if err != nil {
		return nil, err
	}
	return s.composer(rel).List(ctx, args, entity.Eq(rel.Inverse, id))
}

// Connect adds the resolvable children to the relation. Children already
// connected are left alone. Supplying ids of which none resolve yields errs.ErrNotFound.
func (s *Service) Connect(ctx context.Context, id, relation string, childIDs []string) (err error) {
	defer s.observe("connect", time.Now(), &err)

	rel, parent, resolved, err := s.prepareRelation(ctx, id, relation, childIDs)
	if err != nil {
		return err
	}
	if len(childIDs) > 0 && len(resolved) == 0 {
		return fmt.Errorf("%s %v: %w", rel.Name, childIDs, errs.ErrNotFound)
	}

	current := parent.Children[rel.Name]
	union := slices.Clone(current)
	for _, childID := range resolved {
		if !slices.Contains(union, childID) {
			union = append(union, childID)
		}
	}
	return s.relink(ctx, event.TypeRelationConnected, id, rel, union, current, resolved)
}

// Disconnect removes the resolvable children currently in the relation.
// Unknown or unrelated ids are ignored.
func (s *Service) Disconnect(ctx context.Context, id, relation string, childIDs []string) (err error) {
	defer s.observe("disconnect", time.Now(), &err)

	rel, parent, resolved, err := s.prepareRelation(ctx, id, relation, childIDs)
	if err != nil {
		return err
	}

	current := parent.Children[rel.Name]
	remaining := slices.DeleteFunc(slices.Clone(current), func(childID string) bool {
		return slices.Contains(resolved, childID)
	})
	return s.relink(ctx, event.TypeRelationDisconnected, id, rel, remaining, current, resolved)
}

// ReplaceAll makes the relation hold exactly the resolvable children.
// If none resolve, errs.ErrNotFound is returned and nothing changes.
func (s *Service) ReplaceAll(ctx context.Context, id, relation string, childIDs []string) (err error) {
	defer s.observe("replace_related", time.Now(), &err)

	rel, parent, resolved, err := s.prepareRelation(ctx, id, relation, childIDs)
	if err != nil {
		return err
	}
	if len(resolved) == 0 {
		return fmt.Errorf("%s %v: %w", rel.Name, childIDs, errs.ErrNotFound)
	}
	return s.relink(ctx, event.TypeRelationReplaced, id, rel, resolved, parent.Children[rel.Name], resolved)
}

// prepareRelation loads the parent with its children and resolves childIDs.
func (s *Service) prepareRelation(
	ctx context.Context,
	id, relation string,
	childIDs []string,
) (entity.Relation, *entity.Record, []string, error) {
	rel, err := s.relation(relation, entity.Many)
	if err != nil {
		return rel, nil, nil, err
	}
	parent, err := s.query.GetByID(ctx, id)
	if err != nil {
		return rel, nil, nil, err
	}
	resolved, err := resolveIDs(ctx, s.store, s.composer(rel).Schema(), childIDs)
	if err != nil {
		return rel, nil, nil, err
	}
	return rel, parent, resolved, nil
}

func (s *Service) relink(
	ctx context.Context,
	change, id string,
	rel entity.Relation,
	want, have, affected []string,
) error {
	l := s.reconciler.relink(rel, want, have)
	if len(l.Attach) == 0 && len(l.Detach) == 0 {
		return nil
	}
	if err := s.reconciler.ApplyRelinks(ctx, id, []Relink{l}); err != nil {
		return err
	}

	s.publish(ctx, event.NewRecordChanged(s.schema.Name, change, id, s.metadata(ctx)).WithRelation(rel.Name, affected))
	return nil
}

// composer returns the composer for a relation target, falling back to a
// composer built on the service store.
func (s *Service) composer(rel entity.Relation) *QueryComposer {
	if c, ok := s.related[rel.Name]; ok {
		return c
	}
	return NewQueryComposer(s.reconciler.catalog.Target(rel), s.reconciler.catalog, s.store)
}
