package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"datahub/internal/apperr"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc    *Service
	mem    *store.Memory
	alice  context.Context
	bob    context.Context
	module *model.Node
	team   *model.Node
}

// newFixture: D(Dept) -> T(Team) -> B(BizDir) -> M(Module), пользователи alice и bob.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	fx := &fixture{mem: mem, svc: NewService(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))}

	var alice, bob *model.User
	require.NoError(t, mem.WriteTx(ctx, func(tx store.Tx) error {
		alice = &model.User{Username: "alice", Email: "a@x.io", FullName: "Alice A", Role: model.RoleUser, Enabled: true}
		bob = &model.User{Username: "bob", Email: "b@x.io", Role: model.RoleUser, Enabled: true}
		require.NoError(t, tx.Users().Insert(ctx, alice))
		require.NoError(t, tx.Users().Insert(ctx, bob))

		d := &model.Node{Name: "D", Type: model.NodeDepartment}
		require.NoError(t, tx.Nodes().Insert(ctx, d))
		fx.team = &model.Node{Name: "T", Type: model.NodeTeam, ParentID: &d.ID}
		require.NoError(t, tx.Nodes().Insert(ctx, fx.team))
		b := &model.Node{Name: "B", Type: model.NodeBusinessDirection, ParentID: &fx.team.ID}
		require.NoError(t, tx.Nodes().Insert(ctx, b))
		fx.module = &model.Node{Name: "M", Type: model.NodeModule, ParentID: &b.ID}
		return tx.Nodes().Insert(ctx, fx.module)
	}))
	fx.alice = identity.With(ctx, identity.FromUser(alice))
	fx.bob = identity.With(ctx, identity.FromUser(bob))
	return fx
}

func (fx *fixture) create(t *testing.T, ctx context.Context, name string, lvl model.AccessLevel) *FileDTO {
	t.Helper()
	d, err := fx.svc.Create(ctx, CreateRequest{
		Name:               name,
		OrganizationNodeID: fx.module.ID,
		AccessLevel:        lvl,
		ColumnDefinitions:  []model.ColumnDefinition{{Name: "u", DataType: model.TypeString}},
		DataRows:           []model.Row{{"u": "alice"}},
	})
	require.NoError(t, err)
	return d
}

func TestCreateDerivesPathCountsAndFingerprint(t *testing.T) {
	fx := newFixture(t)
	d := fx.create(t, fx.alice, "users", "")

	assert.Equal(t, "D/T/B/M", d.OrganizationNodePath)
	assert.Equal(t, "M", d.OrganizationNodeName)
	assert.Equal(t, model.AccessPrivate, d.AccessLevel)
	assert.Equal(t, 1, d.RowCount)
	assert.Equal(t, 1, d.ColumnCount)
	assert.Equal(t, "Alice A", d.OwnerName)
	assert.Regexp(t, `^[0-9a-f]{32}$`, d.FileHash)
	assert.Equal(t, Fingerprint("users", nil, d.ColumnDefinitions, d.DataRows), d.FileHash)

	got, err := fx.svc.Get(fx.alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.FileHash, got.FileHash)
	assert.Equal(t, d.DataRows, got.DataRows)
}

func TestCreateRejectsNonModuleAnchorAndDuplicates(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Create(fx.alice, CreateRequest{Name: "x1", OrganizationNodeID: fx.team.ID})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonAnchorType, apperr.ReasonOf(err))

	_, err = fx.svc.Create(fx.alice, CreateRequest{Name: "x1", OrganizationNodeID: 999})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonAnchor, apperr.ReasonOf(err))

	fx.create(t, fx.alice, "dup", model.AccessPublic)
	_, err = fx.svc.Create(fx.bob, CreateRequest{Name: "dup", OrganizationNodeID: fx.module.ID})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateValidatesColumnsAndRows(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Create(fx.alice, CreateRequest{
		Name: "bad", OrganizationNodeID: fx.module.ID,
		ColumnDefinitions: []model.ColumnDefinition{{Name: "a", DataType: model.TypeString}, {Name: "a", DataType: "UUID"}},
	})
	e := apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Contains(t, e.Details, "columnDefinitions[1].name")
	assert.Contains(t, e.Details, "columnDefinitions[1].dataType")

	_, err = fx.svc.Create(fx.alice, CreateRequest{
		Name: "bad", OrganizationNodeID: fx.module.ID,
		ColumnDefinitions: []model.ColumnDefinition{
			{Name: "n", DataType: model.TypeInteger, Required: true},
			{Name: "d", DataType: model.TypeDate},
		},
		DataRows: []model.Row{{"n": 1.5, "d": "2024-13-01"}, {"zzz": true}},
	})
	e = apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Equal(t, "expected integer", e.Details["dataRows[0].n"])
	assert.Contains(t, e.Details, "dataRows[0].d")
	assert.Equal(t, "unknown column", e.Details["dataRows[1].zzz"])
	assert.Equal(t, "is required", e.Details["dataRows[1].n"])
}

func TestOwnershipAndVisibility(t *testing.T) {
	fx := newFixture(t)
	priv := fx.create(t, fx.alice, "secret", model.AccessPrivate)
	pub := fx.create(t, fx.alice, "open", model.AccessPublic)

	_, err := fx.svc.Get(fx.bob, priv.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = fx.svc.Get(fx.bob, pub.ID)
	require.NoError(t, err)

	_, err = fx.svc.Update(fx.bob, pub.ID, UpdateRequest{Name: ptr("mine")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(fx.svc.Delete(fx.bob, pub.ID)))

	page, err := fx.svc.Query(fx.bob, QueryRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalElements)
	require.Len(t, page.Content, 1)
	assert.Equal(t, pub.ID, page.Content[0].ID)

	list, err := fx.svc.ByAnchor(fx.bob, fx.module.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = fx.svc.ByAnchor(fx.alice, fx.module.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, fx.svc.Delete(fx.alice, priv.ID))
	_, err = fx.svc.Get(fx.alice, priv.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateRecomputesFingerprint(t *testing.T) {
	fx := newFixture(t)
	d := fx.create(t, fx.alice, "f1", model.AccessPrivate)

	same, err := fx.svc.Update(fx.alice, d.ID, UpdateRequest{AccessLevel: ptr(model.AccessPublic)})
	require.NoError(t, err)
	assert.Equal(t, d.FileHash, same.FileHash)
	assert.Equal(t, model.AccessPublic, same.AccessLevel)

	rows := []model.Row{{"u": "alice"}, {"u": "bob"}}
	changed, err := fx.svc.Update(fx.alice, d.ID, UpdateRequest{DataRows: &rows})
	require.NoError(t, err)
	assert.NotEqual(t, d.FileHash, changed.FileHash)
	assert.Equal(t, 2, changed.RowCount)

	cols := []model.ColumnDefinition{}
	empty := []model.Row{}
	cleared, err := fx.svc.Update(fx.alice, d.ID, UpdateRequest{ColumnDefinitions: &cols, DataRows: &empty})
	require.NoError(t, err)
	assert.Equal(t, 0, cleared.ColumnCount)
	assert.Equal(t, 0, cleared.RowCount)

	fx.create(t, fx.alice, "f2", model.AccessPrivate)
	_, err = fx.svc.Update(fx.alice, d.ID, UpdateRequest{Name: ptr("f2")})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestQueryPagingAndSortValidation(t *testing.T) {
	fx := newFixture(t)
	for _, n := range []string{"c", "a", "e", "b", "d"} {
		fx.create(t, fx.alice, "file-"+n, model.AccessPublic)
	}

	page, err := fx.svc.Query(fx.bob, QueryRequest{Page: ptr(2), Size: ptr(2), SortBy: "name", SortDirection: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "file-c", page.Content[0].Name)
	assert.Equal(t, "file-d", page.Content[1].Name)

	page, err = fx.svc.Query(fx.bob, QueryRequest{Name: "FILE-E"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalElements)

	_, err = fx.svc.Query(fx.bob, QueryRequest{SortBy: "owner", SortDirection: "sideways", Page: ptr(0)})
	e := apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Contains(t, e.Details, "sortBy")
	assert.Contains(t, e.Details, "sortDirection")
	assert.Contains(t, e.Details, "page")

	acc, err := fx.svc.Accessible(fx.bob, 0, 3)
	require.NoError(t, err)
	assert.Len(t, acc.Content, 3)
	assert.EqualValues(t, 5, acc.TotalElements)

	// смещение не должно переполняться и молча возвращать первую страницу
	_, err = fx.svc.Query(fx.bob, QueryRequest{Page: ptr(math.MaxInt), Size: ptr(2)})
	e = apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Contains(t, e.Details, "page")
	_, err = fx.svc.Accessible(fx.bob, math.MaxInt/2, 3)
	e = apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Contains(t, e.Details, "page")
}

func TestRowsKeepLargeIntegersExact(t *testing.T) {
	fx := newFixture(t)
	body := fmt.Sprintf(`{"name":"big","organizationNodeId":%d,
		"columnDefinitions":[{"name":"id","dataType":"INTEGER","required":true}],
		"dataRows":[{"id":9007199254740993}]}`, fx.module.ID)
	var req CreateRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	d, err := fx.svc.Create(fx.alice, req)
	require.NoError(t, err)
	got, err := fx.svc.Get(fx.alice, d.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(got.DataRows)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":9007199254740993}]`, string(raw))
	assert.Equal(t, json.Number("9007199254740993"), got.DataRows[0]["id"])
	assert.Equal(t, Fingerprint(got.Name, got.Description, got.ColumnDefinitions, got.DataRows), got.FileHash)

	// дробное значение в INTEGER по-прежнему отклоняется
	body = fmt.Sprintf(`{"name":"frac","organizationNodeId":%d,
		"columnDefinitions":[{"name":"id","dataType":"INTEGER"}],
		"dataRows":[{"id":1.5}]}`, fx.module.ID)
	req = CreateRequest{}
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	_, err = fx.svc.Create(fx.alice, req)
	assert.Equal(t, "expected integer", apperr.As(err).Details["dataRows[0].id"])
}

func TestNullRowsAreRejected(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Create(fx.alice, CreateRequest{
		Name: "nulls", OrganizationNodeID: fx.module.ID,
		ColumnDefinitions: []model.ColumnDefinition{{Name: "u", DataType: model.TypeString}},
		DataRows:          []model.Row{nil},
	})
	e := apperr.As(err)
	require.Equal(t, apperr.KindInvalid, e.Kind)
	assert.Equal(t, "must be an object", e.Details["dataRows[0]"])

	d := fx.create(t, fx.alice, "ok", model.AccessPrivate)
	_, err = fx.svc.Update(fx.alice, d.ID, UpdateRequest{DataRows: &[]model.Row{{"u": "x"}, nil}})
	assert.Contains(t, apperr.As(err).Details, "dataRows[1]")

	got, err := fx.svc.Get(fx.alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(got.Name, got.Description, got.ColumnDefinitions, got.DataRows), got.FileHash)
}

func TestListingsAndStatistics(t *testing.T) {
	fx := newFixture(t)
	fx.create(t, fx.alice, "open", model.AccessPublic)
	fx.create(t, fx.alice, "closed", model.AccessPrivate)
	_, err := fx.svc.Create(fx.bob, CreateRequest{
		Name: "dates", OrganizationNodeID: fx.module.ID, AccessLevel: model.AccessPublic,
		ColumnDefinitions: []model.ColumnDefinition{{Name: "d", DataType: model.TypeDate}, {Name: "n", DataType: model.TypeInteger}},
		DataRows:          []model.Row{{"d": "2024-01-02", "n": 3.0}, {"d": "2024-01-03"}, {"n": 4.0}},
	})
	require.NoError(t, err)

	recent, err := fx.svc.Recent(fx.bob, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "dates", recent[0].Name)

	byType, err := fx.svc.ByDataType(fx.alice, model.TypeDate)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "dates", byType[0].Name)

	byOwner, err := fx.svc.ByOwner(fx.bob, byType[0].OwnerID)
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	hits, err := fx.svc.Search(fx.bob, "OSE")
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = fx.svc.Search(fx.alice, "OSE")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	st, err := fx.svc.Statistics(fx.bob)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.TotalFiles)
	assert.EqualValues(t, 2, st.PublicFiles)
	assert.EqualValues(t, 1, st.PrivateFiles)
	assert.InDelta(t, 5.0/3.0, st.AvgRowCount, 1e-9)
	assert.InDelta(t, 4.0/3.0, st.AvgColumnCount, 1e-9)
}

func TestReadsRequirePrincipal(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Recent(context.Background(), 5)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}
