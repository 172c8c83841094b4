package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"datahub/internal/apperr"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T) (*Service, *store.Memory, context.Context) {
	t.Helper()
	mem := store.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := identity.With(context.Background(), identity.Principal{ID: 1, Username: "admin", Role: model.RoleAdmin, Enabled: true})
	return NewService(mem, log), mem, ctx
}

func mustCreate(t *testing.T, s *Service, ctx context.Context, name string, typ model.NodeType, parent *int64) *NodeDTO {
	t.Helper()
	d, err := s.Create(ctx, CreateRequest{Name: name, Type: typ, ParentID: parent})
	require.NoError(t, err)
	return d
}

func TestCreateAndTreeOrdering(t *testing.T) {
	s, _, ctx := newService(t)
	eng := mustCreate(t, s, ctx, "Eng", model.NodeDepartment, nil)
	_, err := s.Create(ctx, CreateRequest{Name: "Zeta", Type: model.NodeTeam, ParentID: &eng.ID, SortOrder: ptr(-5)})
	require.NoError(t, err)
	mustCreate(t, s, ctx, "Beta", model.NodeTeam, &eng.ID)
	mustCreate(t, s, ctx, "Alpha", model.NodeTeam, &eng.ID)
	mustCreate(t, s, ctx, "Ops", model.NodeDepartment, nil)

	forest, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 2)
	assert.Equal(t, "Eng", forest[0].Name)
	assert.Equal(t, "Ops", forest[1].Name)

	kids := forest[0].Children
	require.Len(t, kids, 3)
	assert.Equal(t, []string{"Zeta", "Alpha", "Beta"}, []string{kids[0].Name, kids[1].Name, kids[2].Name})
	assert.EqualValues(t, 3, forest[0].ChildrenCount)
	require.NotNil(t, kids[0].ParentName)
	assert.Equal(t, "Eng", *kids[0].ParentName)
	assert.Equal(t, "admin", kids[0].CreatedBy)
}

func TestCreateValidation(t *testing.T) {
	s, _, ctx := newService(t)
	mustCreate(t, s, ctx, "Eng", model.NodeDepartment, nil)

	_, err := s.Create(ctx, CreateRequest{Name: "Eng", Type: model.NodeDepartment})
	assert.True(t, apperr.As(err).Is(apperr.Conflict(apperr.ReasonName, "")))

	_, err = s.Create(ctx, CreateRequest{Name: "Lost", Type: model.NodeTeam, ParentID: ptr[int64](999)})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonParent, apperr.ReasonOf(err))

	_, err = s.Create(ctx, CreateRequest{Name: "Bad", Type: "SQUAD"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = s.Create(context.Background(), CreateRequest{Name: "Anon", Type: model.NodeTeam})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestUpdateKeepsTypeAndParent(t *testing.T) {
	s, _, ctx := newService(t)
	root := mustCreate(t, s, ctx, "Root", model.NodeDepartment, nil)
	a := mustCreate(t, s, ctx, "A", model.NodeTeam, &root.ID)
	mustCreate(t, s, ctx, "B", model.NodeTeam, &root.ID)

	_, err := s.Update(ctx, a.ID, UpdateRequest{Name: "B"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	desc := "renamed"
	got, err := s.Update(ctx, a.ID, UpdateRequest{Name: "A2", Description: &desc, SortOrder: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Name)
	assert.Equal(t, model.NodeTeam, got.Type)
	assert.Equal(t, root.ID, *got.ParentID)
	assert.Equal(t, 3, got.SortOrder)

	// то же имя: не конфликт
	_, err = s.Update(ctx, a.ID, UpdateRequest{Name: "A2"})
	require.NoError(t, err)

	_, err = s.Update(ctx, 4242, UpdateRequest{Name: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteGuards(t *testing.T) {
	s, mem, ctx := newService(t)
	root := mustCreate(t, s, ctx, "Root", model.NodeDepartment, nil)
	mod := mustCreate(t, s, ctx, "Mod", model.NodeModule, &root.ID)

	err := s.Delete(ctx, root.ID)
	assert.Equal(t, apperr.ReasonHasChildren, apperr.ReasonOf(err))

	require.NoError(t, mem.WriteTx(ctx, func(tx store.Tx) error {
		return tx.Files().Insert(ctx, &model.DataFile{Name: "f", AnchorID: mod.ID, OwnerID: 1, AccessLevel: model.AccessPrivate})
	}))
	err = s.Delete(ctx, mod.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonHasFiles, apperr.ReasonOf(err))

	empty := mustCreate(t, s, ctx, "Empty", model.NodeTeam, &root.ID)
	require.NoError(t, s.Delete(ctx, empty.ID))
	_, err = s.Get(ctx, empty.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.Delete(ctx, empty.ID)))
}

func TestMoveRejectsCyclesAndSelf(t *testing.T) {
	s, _, ctx := newService(t)
	a := mustCreate(t, s, ctx, "A", model.NodeDepartment, nil)
	b := mustCreate(t, s, ctx, "B", model.NodeTeam, &a.ID)
	c := mustCreate(t, s, ctx, "C", model.NodeBusinessDirection, &b.ID)

	_, err := s.Move(ctx, a.ID, &c.ID)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonCycle, apperr.ReasonOf(err))

	_, err = s.Move(ctx, a.ID, &a.ID)
	assert.Equal(t, apperr.ReasonSelfMove, apperr.ReasonOf(err))

	_, err = s.Move(ctx, a.ID, ptr[int64](999))
	assert.Equal(t, apperr.ReasonParent, apperr.ReasonOf(err))

	// отклонённые переносы ничего не меняют
	still, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, still.ParentID)
	assert.True(t, a.UpdatedAt.Equal(still.UpdatedAt))
	still, err = s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, *still.ParentID)

	got, err := s.Move(ctx, c.ID, &a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *got.ParentID)

	got, err = s.Move(ctx, c.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)

	forest, err := s.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, forest, 2)
}

func TestMoveChecksNameAtDestination(t *testing.T) {
	s, _, ctx := newService(t)
	p1 := mustCreate(t, s, ctx, "P1", model.NodeDepartment, nil)
	p2 := mustCreate(t, s, ctx, "P2", model.NodeDepartment, nil)
	x := mustCreate(t, s, ctx, "X", model.NodeTeam, &p1.ID)
	mustCreate(t, s, ctx, "X", model.NodeTeam, &p2.ID)

	_, err := s.Move(ctx, x.ID, &p2.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// перенос к тому же родителю: без изменений
	got, err := s.Move(ctx, x.ID, &p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, *got.ParentID)
}

func TestSearch(t *testing.T) {
	s, _, ctx := newService(t)
	root := mustCreate(t, s, ctx, "Platform", model.NodeDepartment, nil)
	mustCreate(t, s, ctx, "Data Platform", model.NodeTeam, &root.ID)
	mustCreate(t, s, ctx, "Billing", model.NodeTeam, &root.ID)

	hits, err := s.Search(ctx, "platform")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Data Platform", hits[0].Name)

	all, err := s.Search(ctx, "  ")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Children, 2)
}

func TestChildrenAndStats(t *testing.T) {
	s, _, ctx := newService(t)
	root := mustCreate(t, s, ctx, "Root", model.NodeDepartment, nil)
	mustCreate(t, s, ctx, "T1", model.NodeTeam, &root.ID)

	roots, err := s.Children(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.EqualValues(t, 1, roots[0].ChildrenCount)

	kids, err := s.Children(ctx, &root.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)

	st, err := s.Stats(ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.ChildrenCount)
	assert.EqualValues(t, 0, st.DataFilesCount)

	_, err = s.Children(ctx, ptr[int64](77))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestBuildTreatsOrphansAsRoots(t *testing.T) {
	forest := Build([]*model.Node{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b", ParentID: ptr[int64](1)},
		{ID: 3, Name: "c", ParentID: ptr[int64](99)},
	})
	require.Len(t, forest, 2)
	assert.Equal(t, "a", forest[0].Name)
	assert.Equal(t, "c", forest[1].Name)
	assert.Len(t, forest[0].Children, 1)
}

// retryStore повторяет WriteTx при store.ErrConflict так же, как pg.Store;
// первые conflicts записей узлов падают с ErrConflict.
type retryStore struct {
	*store.Memory
	conflicts int
	attempts  int
}

func (r *retryStore) WriteTx(ctx context.Context, fn func(store.Tx) error) error {
	var err error
	for i := 0; i < 3; i++ {
		r.attempts++
		err = r.Memory.WriteTx(ctx, func(tx store.Tx) error { return fn(flakyTx{Tx: tx, s: r}) })
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return err
}

type flakyTx struct {
	store.Tx
	s *retryStore
}

func (t flakyTx) Nodes() store.NodeStore { return flakyNodes{NodeStore: t.Tx.Nodes(), s: t.s} }

type flakyNodes struct {
	store.NodeStore
	s *retryStore
}

func (n flakyNodes) fail() error {
	if n.s.conflicts > 0 {
		n.s.conflicts--
		return fmt.Errorf("write node: %w", store.ErrConflict)
	}
	return nil
}

func (n flakyNodes) Insert(ctx context.Context, node *model.Node) error {
	if err := n.fail(); err != nil {
		return err
	}
	return n.NodeStore.Insert(ctx, node)
}

func (n flakyNodes) Update(ctx context.Context, node *model.Node) error {
	if err := n.fail(); err != nil {
		return err
	}
	return n.NodeStore.Update(ctx, node)
}

func TestWritesRetryOnSerializationConflict(t *testing.T) {
	rs := &retryStore{Memory: store.NewMemory()}
	s := NewService(rs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := identity.With(context.Background(), identity.Principal{ID: 1, Username: "admin", Role: model.RoleAdmin, Enabled: true})

	rs.conflicts = 1
	a, err := s.Create(ctx, CreateRequest{Name: "A", Type: model.NodeDepartment})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.attempts)

	b := mustCreate(t, s, ctx, "B", model.NodeDepartment, nil)
	rs.attempts, rs.conflicts = 0, 1
	moved, err := s.Move(ctx, b.ID, &a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *moved.ParentID)
	assert.Equal(t, 2, rs.attempts)

	rs.attempts, rs.conflicts = 0, 1
	_, err = s.Update(ctx, a.ID, UpdateRequest{Name: "A2"})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.attempts)

	// повторы исчерпаны: CONFLICT сохраняет причину, в дереве ничего лишнего
	rs.attempts, rs.conflicts = 0, 10
	_, err = s.Create(ctx, CreateRequest{Name: "C", Type: model.NodeDepartment})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 3, rs.attempts)
	roots, err := s.Children(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}
