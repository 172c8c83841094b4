package pg

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"datahub/internal/apperr"
	"datahub/internal/catalog"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"
	"datahub/internal/tree"
)

var (
	dbOnce   sync.Once
	sharedDB *sql.DB
	dbErr    error
)

// testDB поднимает один контейнер на пакет и чистит таблицы перед каждым тестом.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests are skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	dbOnce.Do(func() {
		ctx := context.Background()
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("datahub"),
			postgres.WithUsername("datahub"),
			postgres.WithPassword("datahub"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			dbErr = err
			return
		}
		url, err := ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			dbErr = err
			return
		}
		if sharedDB, dbErr = Open(ctx, url, Pool{MaxOpen: 4}); dbErr != nil {
			return
		}
		dbErr = Migrate(ctx, sharedDB)
	})
	require.NoError(t, dbErr)

	_, err := sharedDB.Exec(`truncate data_files, organization_nodes, users restart identity cascade`)
	require.NoError(t, err)
	return sharedDB
}

func ptr[T any](v T) *T { return &v }

func TestPoolDefaults(t *testing.T) {
	p := Pool{MaxOpen: 3, MaxIdle: 8}.withDefaults()
	assert.Equal(t, 3, p.MaxOpen)
	assert.Equal(t, 3, p.MaxIdle)
	assert.Equal(t, DefaultPool.MaxLifetime, p.MaxLifetime)
	assert.Equal(t, DefaultPool, Pool{}.withDefaults())
}

func TestOpenAppliesPoolSize(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestNodesRoundTripAndWalks(t *testing.T) {
	ctx := context.Background()
	st := New(testDB(t))

	var root, mid, leaf *model.Node
	require.NoError(t, st.WriteTx(ctx, func(tx store.Tx) error {
		root = &model.Node{Name: "Root", Type: model.NodeDepartment, Description: ptr("top")}
		require.NoError(t, tx.Nodes().Insert(ctx, root))
		mid = &model.Node{Name: "Mid", Type: model.NodeTeam, ParentID: &root.ID}
		require.NoError(t, tx.Nodes().Insert(ctx, mid))
		leaf = &model.Node{Name: "Leaf", Type: model.NodeModule, ParentID: &mid.ID, SortOrder: 2}
		return tx.Nodes().Insert(ctx, leaf)
	}))

	require.NoError(t, st.ReadTx(ctx, func(tx store.Tx) error {
		got, err := tx.Nodes().FindByID(ctx, root.ID)
		require.NoError(t, err)
		assert.Equal(t, "top", *got.Description)
		assert.Nil(t, got.ParentID)
		assert.True(t, got.CreatedAt.Equal(root.CreatedAt))

		anc, err := tx.Nodes().FindAncestors(ctx, leaf.ID)
		require.NoError(t, err)
		require.Len(t, anc, 2)
		assert.Equal(t, mid.ID, anc[0].ID)
		assert.Equal(t, root.ID, anc[1].ID)

		desc, err := tx.Nodes().FindDescendants(ctx, root.ID)
		require.NoError(t, err)
		assert.Len(t, desc, 2)

		dup, err := tx.Nodes().ExistsSiblingName(ctx, "Root", nil, nil)
		require.NoError(t, err)
		assert.True(t, dup)
		dup, err = tx.Nodes().ExistsSiblingName(ctx, "Root", nil, &root.ID)
		require.NoError(t, err)
		assert.False(t, dup)

		_, err = tx.Nodes().FindByID(ctx, 424242)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))

	// уникальный индекс ловит дубликат корня даже в обход сервиса
	err := st.WriteTx(ctx, func(tx store.Tx) error {
		return tx.Nodes().Insert(ctx, &model.Node{Name: "Root", Type: model.NodeDepartment})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestFilesFindPushesFiltersIntoSQL(t *testing.T) {
	ctx := context.Background()
	st := New(testDB(t))

	var owner1, owner2 *model.User
	var mod *model.Node
	require.NoError(t, st.WriteTx(ctx, func(tx store.Tx) error {
		owner1 = &model.User{Username: "u1", Email: "u1@x.io", PasswordHash: "x", Role: model.RoleUser, Enabled: true}
		owner2 = &model.User{Username: "u2", Email: "u2@x.io", PasswordHash: "x", Role: model.RoleUser, Enabled: true}
		require.NoError(t, tx.Users().Insert(ctx, owner1))
		require.NoError(t, tx.Users().Insert(ctx, owner2))
		mod = &model.Node{Name: "M", Type: model.NodeModule}
		return tx.Nodes().Insert(ctx, mod)
	}))

	mk := func(name string, owner int64, lvl model.AccessLevel, cols []model.ColumnDefinition, rows []model.Row) {
		require.NoError(t, st.WriteTx(ctx, func(tx store.Tx) error {
			return tx.Files().Insert(ctx, &model.DataFile{
				Name: name, Fingerprint: "0123456789abcdef0123456789abcdef", AnchorID: mod.ID, OwnerID: owner,
				AccessLevel: lvl, Columns: cols, Rows: rows, RowCount: len(rows), ColumnCount: len(cols),
			})
		}))
	}
	mk("alpha", owner1.ID, model.AccessPublic, []model.ColumnDefinition{{Name: "d", DataType: model.TypeDate}}, []model.Row{{"d": "2024-01-01"}})
	mk("beta", owner2.ID, model.AccessPrivate, nil, nil)
	mk("gamma", owner2.ID, model.AccessPublic, []model.ColumnDefinition{{Name: "n", DataType: model.TypeInteger}}, nil)

	require.NoError(t, st.ReadTx(ctx, func(tx store.Tx) error {
		list, total, err := tx.Files().Find(ctx, store.FileQuery{VisibleTo: &owner1.ID, Sort: store.FileSort{Field: store.SortName}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Equal(t, []string{"alpha", "gamma"}, []string{list[0].Name, list[1].Name})
		assert.Equal(t, model.Row{"d": "2024-01-01"}, list[0].Rows[0])

		list, total, err = tx.Files().Find(ctx, store.FileQuery{DataType: ptr(model.TypeInteger), Sort: store.NewestFirst})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, "gamma", list[0].Name)

		list, total, err = tx.Files().Find(ctx, store.FileQuery{OwnerID: &owner2.ID, Sort: store.NewestFirst, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, list, 1)
		assert.Equal(t, "beta", list[0].Name)

		same, err := tx.Files().FindByFingerprint(ctx, "0123456789ABCDEF0123456789ABCDEF")
		require.NoError(t, err)
		assert.Len(t, same, 3)

		n, err := tx.Files().CountByOwner(ctx, owner2.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		public, err := tx.Files().FindByAccessLevel(ctx, model.AccessPublic)
		require.NoError(t, err)
		require.Len(t, public, 2)
		assert.Equal(t, "gamma", public[0].Name)
		assert.Equal(t, "alpha", public[1].Name)
		return nil
	}))
}

func TestServicesOnPostgres(t *testing.T) {
	st := New(testDB(t))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	trees := tree.NewService(st, log)
	files := catalog.NewService(st, log)

	var alice *model.User
	require.NoError(t, st.WriteTx(context.Background(), func(tx store.Tx) error {
		alice = &model.User{Username: "alice", Email: "alice@x.io", PasswordHash: "x", Role: model.RoleUser, Enabled: true}
		return tx.Users().Insert(context.Background(), alice)
	}))
	ctx := identity.With(context.Background(), identity.FromUser(alice))

	d, err := trees.Create(ctx, tree.CreateRequest{Name: "D", Type: model.NodeDepartment})
	require.NoError(t, err)
	tm, err := trees.Create(ctx, tree.CreateRequest{Name: "T", Type: model.NodeTeam, ParentID: &d.ID})
	require.NoError(t, err)
	m, err := trees.Create(ctx, tree.CreateRequest{Name: "M", Type: model.NodeModule, ParentID: &tm.ID})
	require.NoError(t, err)

	_, err = trees.Create(ctx, tree.CreateRequest{Name: "T", Type: model.NodeTeam, ParentID: &d.ID})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = trees.Move(ctx, d.ID, &m.ID)
	assert.Equal(t, apperr.ReasonCycle, apperr.ReasonOf(err))

	f, err := files.Create(ctx, catalog.CreateRequest{
		Name: "users", OrganizationNodeID: m.ID,
		ColumnDefinitions: []model.ColumnDefinition{{Name: "u", DataType: model.TypeString}},
		DataRows:          []model.Row{{"u": "alice"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "D/T/M", f.OrganizationNodePath)

	err = trees.Delete(ctx, m.ID)
	assert.Equal(t, apperr.ReasonHasFiles, apperr.ReasonOf(err))

	page, err := files.Query(ctx, catalog.QueryRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalElements)
	assert.Equal(t, f.FileHash, page.Content[0].FileHash)

	forest, err := trees.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.EqualValues(t, 1, forest[0].Children[0].Children[0].DataFilesCount)
}

func TestWriteTxHonoursCancellation(t *testing.T) {
	st := New(testDB(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	err := st.WriteTx(ctx, func(tx store.Tx) error {
		return tx.Nodes().Insert(ctx, &model.Node{Name: "late", Type: model.NodeModule})
	})
	assert.Error(t, err)
}
