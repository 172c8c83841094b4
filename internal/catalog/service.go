// Package catalog manages data files: small typed tables anchored to MODULE
// nodes, fingerprinted by content and filtered by owner/PUBLIC visibility.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"datahub/internal/apperr"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"
)

const (
	DefaultPageSize    = 10
	MaxPageSize        = 100
	DefaultRecentLimit = 10
)

type Service struct {
	store store.Store
	log   *slog.Logger
}

func NewService(st store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, log: log}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*FileDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid(apperr.ReasonValidation, "file name is required").WithDetail("name", "must not be blank")
	}
	level := req.AccessLevel
	if level == "" {
		level = model.AccessPrivate
	}
	if !level.Valid() {
		return nil, apperr.Invalid(apperr.ReasonValidation, "unknown access level %q", level).WithDetail("accessLevel", "must be PRIVATE or PUBLIC")
	}
	if e := validateColumns(req.ColumnDefinitions); e != nil {
		return nil, e
	}
	if e := validateRows(req.ColumnDefinitions, req.DataRows); e != nil {
		return nil, e
	}

	var out *FileDTO
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		anchor, err := tx.Nodes().FindByID(ctx, req.OrganizationNodeID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(apperr.ReasonAnchor, "organization node %d not found", req.OrganizationNodeID)
		}
		if err != nil {
			return err
		}
		if anchor.Type != model.NodeModule {
			return apperr.Invalid(apperr.ReasonAnchorType, "data files can only be attached to MODULE nodes, %q is %s", anchor.Name, anchor.Type)
		}
		dup, err := tx.Files().ExistsNameInAnchor(ctx, name, anchor.ID, nil)
		if err != nil {
			return err
		}
		if dup {
			return fileNameTaken(name)
		}

		f := &model.DataFile{
			Name:        name,
			Description: req.Description,
			AnchorID:    anchor.ID,
			OwnerID:     p.ID,
			AccessLevel: level,
			Columns:     req.ColumnDefinitions,
			Rows:        req.DataRows,
		}
		f.CreatedBy, f.UpdatedBy = p.Username, p.Username
		recompute(f)
		if err := tx.Files().Insert(ctx, f); err != nil {
			return err
		}
		out, err = newAssembler(tx).one(ctx, f)
		return err
	})
	if err != nil {
		return nil, mapWriteErr(err, name)
	}
	s.log.InfoContext(ctx, "data file created", "file_id", out.ID, "anchor_id", out.OrganizationNodeID, "hash", out.FileHash, "by", p.Username)
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*FileDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	if req.AccessLevel != nil && !req.AccessLevel.Valid() {
		return nil, apperr.Invalid(apperr.ReasonValidation, "unknown access level %q", *req.AccessLevel).WithDetail("accessLevel", "must be PRIVATE or PUBLIC")
	}

	var out *FileDTO
	var name string
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		f, err := loadFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if f.OwnerID != p.ID {
			return apperr.Forbidden("only the owner can modify data file %d", id)
		}
		if req.Name != nil {
			n := strings.TrimSpace(*req.Name)
			if n == "" {
				return apperr.Invalid(apperr.ReasonValidation, "file name is required").WithDetail("name", "must not be blank")
			}
			if n != f.Name {
				dup, err := tx.Files().ExistsNameInAnchor(ctx, n, f.AnchorID, &f.ID)
				if err != nil {
					return err
				}
				if dup {
					return fileNameTaken(n)
				}
			}
			f.Name = n
		}
		name = f.Name
		if req.Description != nil {
			f.Description = req.Description
		}
		if req.AccessLevel != nil {
			f.AccessLevel = *req.AccessLevel
		}
		if req.ColumnDefinitions != nil || req.DataRows != nil {
			if req.ColumnDefinitions != nil {
				f.Columns = *req.ColumnDefinitions
			}
			if req.DataRows != nil {
				f.Rows = *req.DataRows
			}
			if e := validateColumns(f.Columns); e != nil {
				return e
			}
			if e := validateRows(f.Columns, f.Rows); e != nil {
				return e
			}
		}
		f.UpdatedBy = p.Username
		recompute(f)
		if err := tx.Files().Update(ctx, f); err != nil {
			return err
		}
		out, err = newAssembler(tx).one(ctx, f)
		return err
	})
	if err != nil {
		return nil, mapWriteErr(err, name)
	}
	s.log.InfoContext(ctx, "data file updated", "file_id", id, "hash", out.FileHash, "by", p.Username)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	p, err := identity.Current(ctx)
	if err != nil {
		return err
	}
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		f, err := loadFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if f.OwnerID != p.ID {
			return apperr.Forbidden("only the owner can delete data file %d", id)
		}
		return tx.Files().DeleteByID(ctx, id)
	})
	if err != nil {
		return mapWriteErr(err, "")
	}
	s.log.InfoContext(ctx, "data file deleted", "file_id", id, "by", p.Username)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*FileDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	var out *FileDTO
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		f, err := loadFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if !f.VisibleTo(p.ID) {
			return apperr.Forbidden("no access to data file %d", id)
		}
		out, err = newAssembler(tx).one(ctx, f)
		return err
	})
	return out, err
}

// Query: фильтры, предикат доступа, сортировка и страница (page с 1).
func (s *Service) Query(ctx context.Context, req QueryRequest) (Page[*FileDTO], error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return Page[*FileDTO]{}, err
	}
	q, page, size, verr := buildQuery(req)
	if verr != nil {
		return Page[*FileDTO]{}, verr
	}
	q.VisibleTo = &p.ID
	return s.page(ctx, q, page, size)
}

// Accessible: видимые вызывающему файлы, новые первыми; page с 0.
func (s *Service) Accessible(ctx context.Context, page, size int) (Page[*FileDTO], error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return Page[*FileDTO]{}, err
	}
	if page < 0 {
		return Page[*FileDTO]{}, apperr.Invalid(apperr.ReasonValidation, "page must not be negative").WithDetail("page", "must be >= 0")
	}
	size = clampSize(size)
	if page > math.MaxInt/size {
		return Page[*FileDTO]{}, apperr.Invalid(apperr.ReasonValidation, "page is too large").WithDetail("page", "is too large")
	}
	q := store.FileQuery{VisibleTo: &p.ID, Sort: store.NewestFirst, Offset: page * size, Limit: size}
	return s.page(ctx, q, page, size)
}

func (s *Service) page(ctx context.Context, q store.FileQuery, page, size int) (Page[*FileDTO], error) {
	var out Page[*FileDTO]
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		files, total, err := tx.Files().Find(ctx, q)
		if err != nil {
			return err
		}
		dtos, err := newAssembler(tx).many(ctx, files)
		if err != nil {
			return err
		}
		out = newPage(dtos, page, size, total)
		return nil
	})
	return out, err
}

func (s *Service) ByAnchor(ctx context.Context, anchorID int64) ([]*FileDTO, error) {
	return s.visible(ctx, func(tx store.Tx) ([]*model.DataFile, error) {
		return tx.Files().FindByAnchor(ctx, anchorID)
	})
}

func (s *Service) ByOwner(ctx context.Context, ownerID int64) ([]*FileDTO, error) {
	return s.visible(ctx, func(tx store.Tx) ([]*model.DataFile, error) {
		return tx.Files().FindByOwner(ctx, ownerID)
	})
}

// Search: подстрока имени без учёта регистра.
func (s *Service) Search(ctx context.Context, keyword string) ([]*FileDTO, error) {
	keyword = strings.TrimSpace(keyword)
	return s.visible(ctx, func(tx store.Tx) ([]*model.DataFile, error) {
		return tx.Files().FindByNameSubstring(ctx, keyword)
	})
}

func (s *Service) ByDataType(ctx context.Context, dt model.DataType) ([]*FileDTO, error) {
	if !dt.Valid() {
		return nil, apperr.Invalid(apperr.ReasonValidation, "unknown data type %q", dt).WithDetail("dataType", "unknown data type")
	}
	return s.find(ctx, store.FileQuery{DataType: &dt, Sort: store.NewestFirst})
}

// Recent: последние limit видимых файлов; limit приводится к [1, MaxPageSize].
func (s *Service) Recent(ctx context.Context, limit int) ([]*FileDTO, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return s.find(ctx, store.FileQuery{Sort: store.NewestFirst, Limit: limit})
}

func (s *Service) find(ctx context.Context, q store.FileQuery) ([]*FileDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	q.VisibleTo = &p.ID
	var out []*FileDTO
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		files, _, err := tx.Files().Find(ctx, q)
		if err != nil {
			return err
		}
		out, err = newAssembler(tx).many(ctx, files)
		return err
	})
	return out, err
}

// visible берёт список из примитива хранилища и отбрасывает недоступное.
func (s *Service) visible(ctx context.Context, load func(store.Tx) ([]*model.DataFile, error)) ([]*FileDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	var out []*FileDTO
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		files, err := load(tx)
		if err != nil {
			return err
		}
		kept := files[:0]
		for _, f := range files {
			if f.VisibleTo(p.ID) {
				kept = append(kept, f)
			}
		}
		out, err = newAssembler(tx).many(ctx, kept)
		return err
	})
	return out, err
}

// Statistics считается по всем файлам, без учёта доступа.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	if _, err := identity.Current(ctx); err != nil {
		return nil, err
	}
	st := &Statistics{}
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		if st.TotalFiles, err = tx.Files().CountAll(ctx); err != nil {
			return err
		}
		if st.PublicFiles, err = tx.Files().CountByAccessLevel(ctx, model.AccessPublic); err != nil {
			return err
		}
		if st.PrivateFiles, err = tx.Files().CountByAccessLevel(ctx, model.AccessPrivate); err != nil {
			return err
		}
		if st.TotalFiles == 0 {
			return nil
		}
		all, _, err := tx.Files().Find(ctx, store.FileQuery{Sort: store.NewestFirst})
		if err != nil {
			return err
		}
		var rows, cols int64
		for _, f := range all {
			rows += int64(f.RowCount)
			cols += int64(f.ColumnCount)
		}
		n := float64(len(all))
		st.AvgRowCount = float64(rows) / n
		st.AvgColumnCount = float64(cols) / n
		return nil
	})
	return st, err
}

func (s *Service) DataTypes() []model.DataType { return model.DataTypes() }

// ==== helpers ====

func buildQuery(req QueryRequest) (store.FileQuery, int, int, *apperr.Error) {
	var e *apperr.Error
	fail := func(field, msg string) {
		if e == nil {
			e = apperr.Invalid(apperr.ReasonValidation, "invalid query")
		}
		e.WithDetail(field, msg)
	}

	page := 1
	if req.Page != nil {
		page = *req.Page
		if page < 1 {
			fail("page", "must be >= 1")
		}
	}
	size := DefaultPageSize
	if req.Size != nil {
		size = *req.Size
		if size < 1 {
			fail("size", "must be >= 1")
		}
	}
	size = clampSize(size)
	if page-1 > math.MaxInt/size {
		fail("page", "is too large")
	}

	sort := store.NewestFirst
	if req.SortBy != "" {
		sort.Field = store.SortField(req.SortBy)
		if !sort.Field.Valid() {
			fail("sortBy", "must be one of createdAt, updatedAt, name, rowCount, columnCount")
		}
	}
	switch strings.ToLower(req.SortDirection) {
	case "", "desc":
		sort.Desc = true
	case "asc":
		sort.Desc = false
	default:
		fail("sortDirection", "must be asc or desc")
	}
	if req.AccessLevel != nil && !req.AccessLevel.Valid() {
		fail("accessLevel", "must be PRIVATE or PUBLIC")
	}
	if req.DataType != nil && !req.DataType.Valid() {
		fail("dataType", "unknown data type")
	}
	if e != nil {
		return store.FileQuery{}, 0, 0, e
	}

	return store.FileQuery{
		Name:        strings.TrimSpace(req.Name),
		AnchorID:    req.OrganizationNodeID,
		OwnerID:     req.OwnerID,
		AccessLevel: req.AccessLevel,
		DataType:    req.DataType,
		Sort:        sort,
		Offset:      (page - 1) * size,
		Limit:       size,
	}, page, size, nil
}

func clampSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

func recompute(f *model.DataFile) {
	f.RowCount = len(f.Rows)
	f.ColumnCount = len(f.Columns)
	f.Fingerprint = fingerprintOf(f)
}

func loadFile(ctx context.Context, tx store.Tx, id int64) (*model.DataFile, error) {
	f, err := tx.Files().FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("", "data file %d not found", id)
	}
	return f, err
}

func fileNameTaken(name string) error {
	return apperr.Conflict(apperr.ReasonName, "a data file named %q already exists in this module", name)
}

func mapWriteErr(err error, name string) error {
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return fileNameTaken(name)
	case errors.Is(err, store.ErrConflict):
		e := apperr.Conflict("", "concurrent modification, retry the request")
		e.Err = err
		return e
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("", "data file not found")
	}
	return err
}
