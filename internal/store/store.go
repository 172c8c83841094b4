// Package store declares the persistence primitives used by the services
// and provides the in-memory implementation. The Postgres implementation
// lives in internal/pg.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"datahub/internal/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
	ErrConflict  = errors.New("store: concurrent update conflict")
	ErrReadOnly  = errors.New("store: write in read-only transaction")
)

// Store открывает транзакции. fn выполняется целиком внутри одной транзакции;
// ошибка из fn откатывает все записи.
type Store interface {
	ReadTx(ctx context.Context, fn func(Tx) error) error
	WriteTx(ctx context.Context, fn func(Tx) error) error
}

type Tx interface {
	Nodes() NodeStore
	Files() FileStore
	Users() UserStore
}

type NodeStore interface {
	FindByID(ctx context.Context, id int64) (*model.Node, error)
	FindRoots(ctx context.Context) ([]*model.Node, error)
	FindChildren(ctx context.Context, parentID int64) ([]*model.Node, error)
	FindAll(ctx context.Context) ([]*model.Node, error)
	// FindAncestors: собственные предки, ближайший первым.
	FindAncestors(ctx context.Context, id int64) ([]*model.Node, error)
	FindDescendants(ctx context.Context, id int64) ([]*model.Node, error)
	FindByNameSubstring(ctx context.Context, s string) ([]*model.Node, error)
	ExistsSiblingName(ctx context.Context, name string, parentID, excludeID *int64) (bool, error)
	CountChildren(ctx context.Context, parentID int64) (int64, error)
	CountFilesAnchored(ctx context.Context, id int64) (int64, error)
	Insert(ctx context.Context, n *model.Node) error
	Update(ctx context.Context, n *model.Node) error
	DeleteByID(ctx context.Context, id int64) error
}

type FileStore interface {
	FindByID(ctx context.Context, id int64) (*model.DataFile, error)
	FindByAnchor(ctx context.Context, anchorID int64) ([]*model.DataFile, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]*model.DataFile, error)
	FindByAccessLevel(ctx context.Context, level model.AccessLevel) ([]*model.DataFile, error)
	FindByNameSubstring(ctx context.Context, s string) ([]*model.DataFile, error)
	FindByFingerprint(ctx context.Context, fp string) ([]*model.DataFile, error)
	ExistsNameInAnchor(ctx context.Context, name string, anchorID int64, excludeID *int64) (bool, error)
	CountAll(ctx context.Context) (int64, error)
	CountByAccessLevel(ctx context.Context, level model.AccessLevel) (int64, error)
	CountByAnchor(ctx context.Context, anchorID int64) (int64, error)
	CountByOwner(ctx context.Context, ownerID int64) (int64, error)
	// Find: составной запрос с фильтрами, предикатом доступа, сортировкой и страницей.
	// total: число записей после фильтров и предиката доступа, до пагинации.
	Find(ctx context.Context, q FileQuery) (files []*model.DataFile, total int64, err error)
	Insert(ctx context.Context, f *model.DataFile) error
	Update(ctx context.Context, f *model.DataFile) error
	DeleteByID(ctx context.Context, id int64) error
}

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
}

// ==== Запрос файлов ====

type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortUpdatedAt   SortField = "updatedAt"
	SortName        SortField = "name"
	SortRowCount    SortField = "rowCount"
	SortColumnCount SortField = "columnCount"
)

var sortFields = []SortField{SortCreatedAt, SortUpdatedAt, SortName, SortRowCount, SortColumnCount}

func SortFields() []SortField { return append([]SortField(nil), sortFields...) }

func (f SortField) Valid() bool {
	for _, v := range sortFields {
		if v == f {
			return true
		}
	}
	return false
}

type FileSort struct {
	Field SortField
	Desc  bool
}

// NewestFirst: порядок по умолчанию для списков файлов.
var NewestFirst = FileSort{Field: SortCreatedAt, Desc: true}

type FileQuery struct {
	Name        string // подстрока без учёта регистра
	AnchorID    *int64
	OwnerID     *int64
	AccessLevel *model.AccessLevel
	DataType    *model.DataType
	// VisibleTo: id principal; nil отключает предикат доступа.
	VisibleTo *int64
	Sort      FileSort
	Offset    int
	Limit     int // 0 = без ограничения
}

// Match проверяет все условия запроса, кроме пагинации.
func (q FileQuery) Match(f *model.DataFile) bool {
	if q.Name != "" && !ContainsFold(f.Name, q.Name) {
		return false
	}
	if q.AnchorID != nil && f.AnchorID != *q.AnchorID {
		return false
	}
	if q.OwnerID != nil && f.OwnerID != *q.OwnerID {
		return false
	}
	if q.AccessLevel != nil && f.AccessLevel != *q.AccessLevel {
		return false
	}
	if q.DataType != nil && !f.HasColumnType(*q.DataType) {
		return false
	}
	if q.VisibleTo != nil && !f.VisibleTo(*q.VisibleTo) {
		return false
	}
	return true
}

// ==== Порядок ====

// SortNodes: (sortOrder, name, id) по возрастанию.
func SortNodes(nodes []*model.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// SortFiles сортирует по полю; при равенстве по id в том же направлении.
func SortFiles(files []*model.DataFile, s FileSort) {
	if !s.Field.Valid() {
		s = NewestFirst
	}
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		c := compareFiles(a, b, s.Field)
		if c == 0 {
			c = cmpInt64(a.ID, b.ID)
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareFiles(a, b *model.DataFile, f SortField) int {
	switch f {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortRowCount:
		return cmpInt64(int64(a.RowCount), int64(b.RowCount))
	case SortColumnCount:
		return cmpInt64(int64(a.ColumnCount), int64(b.ColumnCount))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ContainsFold: подстрока без учёта регистра.
func ContainsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
