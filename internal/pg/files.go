package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"datahub/internal/model"
	"datahub/internal/store"
)

const fileCols = `id, name, description, file_hash, organization_node_id, owner_id, access_level,
	column_definitions, data_rows, row_count, column_count, created_at, updated_at, created_by, updated_by`

const fileNewestFirst = ` order by created_at desc, id desc`

type files struct{ t *pgTx }

func scanFile(r scanner) (*model.DataFile, error) {
	var (
		f          model.DataFile
		desc       sql.NullString
		level      string
		cols, rows []byte
	)
	if err := r.Scan(&f.ID, &f.Name, &desc, &f.Fingerprint, &f.AnchorID, &f.OwnerID, &level,
		&cols, &rows, &f.RowCount, &f.ColumnCount, &f.CreatedAt, &f.UpdatedAt, &f.CreatedBy, &f.UpdatedBy); err != nil {
		return nil, err
	}
	f.Description = stringPtr(desc)
	f.AccessLevel = model.AccessLevel(level)
	if err := json.Unmarshal(cols, &f.Columns); err != nil {
		return nil, fmt.Errorf("decode column_definitions of file %d: %w", f.ID, err)
	}
	if err := json.Unmarshal(rows, &f.Rows); err != nil {
		return nil, fmt.Errorf("decode data_rows of file %d: %w", f.ID, err)
	}
	return &f, nil
}

func encodeContent(f *model.DataFile) (cols, rows []byte, err error) {
	c := f.Columns
	if c == nil {
		c = []model.ColumnDefinition{}
	}
	r := f.Rows
	if r == nil {
		r = []model.Row{}
	}
	if cols, err = json.Marshal(c); err != nil {
		return nil, nil, err
	}
	if rows, err = json.Marshal(r); err != nil {
		return nil, nil, err
	}
	return cols, rows, nil
}

func (s files) query(ctx context.Context, q string, args ...any) ([]*model.DataFile, error) {
	rs, err := s.t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rs.Close()
	out := make([]*model.DataFile, 0)
	for rs.Next() {
		f, err := scanFile(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, mapErr(rs.Err())
}

func (s files) FindByID(ctx context.Context, id int64) (*model.DataFile, error) {
	f, err := scanFile(s.t.tx.QueryRowContext(ctx, `select `+fileCols+` from data_files where id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (s files) FindByAnchor(ctx context.Context, anchorID int64) ([]*model.DataFile, error) {
	return s.query(ctx, `select `+fileCols+` from data_files where organization_node_id = $1`+fileNewestFirst, anchorID)
}

func (s files) FindByOwner(ctx context.Context, ownerID int64) ([]*model.DataFile, error) {
	return s.query(ctx, `select `+fileCols+` from data_files where owner_id = $1`+fileNewestFirst, ownerID)
}

func (s files) FindByAccessLevel(ctx context.Context, level model.AccessLevel) ([]*model.DataFile, error) {
	return s.query(ctx, `select `+fileCols+` from data_files where access_level = $1`+fileNewestFirst, string(level))
}

func (s files) FindByNameSubstring(ctx context.Context, sub string) ([]*model.DataFile, error) {
	return s.query(ctx, `select `+fileCols+` from data_files where strpos(lower(name), lower($1)) > 0`+fileNewestFirst, sub)
}

func (s files) FindByFingerprint(ctx context.Context, fp string) ([]*model.DataFile, error) {
	return s.query(ctx, `select `+fileCols+` from data_files where file_hash = $1`+fileNewestFirst, strings.ToLower(fp))
}

func (s files) ExistsNameInAnchor(ctx context.Context, name string, anchorID int64, excludeID *int64) (bool, error) {
	return exists(ctx, s.t.tx, `
select 1 from data_files
where name = $1 and organization_node_id = $2 and ($3::bigint is null or id <> $3)`,
		name, anchorID, nullInt64(excludeID))
}

func (s files) CountAll(ctx context.Context) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from data_files`)
}

func (s files) CountByAccessLevel(ctx context.Context, level model.AccessLevel) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from data_files where access_level = $1`, string(level))
}

func (s files) CountByAnchor(ctx context.Context, anchorID int64) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from data_files where organization_node_id = $1`, anchorID)
}

func (s files) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from data_files where owner_id = $1`, ownerID)
}

var sortColumns = map[store.SortField]string{
	store.SortCreatedAt:   "created_at",
	store.SortUpdatedAt:   "updated_at",
	store.SortName:        `name collate "C"`,
	store.SortRowCount:    "row_count",
	store.SortColumnCount: "column_count",
}

// Find собирает where из FileQuery; фильтр по типу колонки: jsonb containment.
func (s files) Find(ctx context.Context, q store.FileQuery) ([]*model.DataFile, int64, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Name != "" {
		conds = append(conds, "strpos(lower(name), lower("+arg(q.Name)+")) > 0")
	}
	if q.AnchorID != nil {
		conds = append(conds, "organization_node_id = "+arg(*q.AnchorID))
	}
	if q.OwnerID != nil {
		conds = append(conds, "owner_id = "+arg(*q.OwnerID))
	}
	if q.AccessLevel != nil {
		conds = append(conds, "access_level = "+arg(string(*q.AccessLevel)))
	}
	if q.DataType != nil {
		probe, err := json.Marshal([]map[string]string{{"dataType": string(*q.DataType)}})
		if err != nil {
			return nil, 0, err
		}
		conds = append(conds, "column_definitions @> "+arg(string(probe))+"::jsonb")
	}
	if q.VisibleTo != nil {
		conds = append(conds, "(access_level = 'PUBLIC' or owner_id = "+arg(*q.VisibleTo)+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	total, err := count(ctx, s.t.tx, `select count(*) from data_files`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[q.Sort.Field]
	if !ok {
		col, q.Sort = sortColumns[store.SortCreatedAt], store.NewestFirst
	}
	dir := "asc"
	if q.Sort.Desc {
		dir = "desc"
	}
	page := ` order by ` + col + ` ` + dir + `, id ` + dir
	if q.Limit > 0 {
		page += " limit " + arg(q.Limit)
	}
	if q.Offset > 0 {
		page += " offset " + arg(q.Offset)
	}
	list, err := s.query(ctx, `select `+fileCols+` from data_files`+where+page, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s files) Insert(ctx context.Context, f *model.DataFile) error {
	cols, rows, err := encodeContent(f)
	if err != nil {
		return err
	}
	now := s.t.now()
	err = s.t.tx.QueryRowContext(ctx, `
insert into data_files (name, description, file_hash, organization_node_id, owner_id, access_level,
	column_definitions, data_rows, row_count, column_count, created_at, updated_at, created_by, updated_by)
values ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $11, $12, $13)
returning id`,
		f.Name, nullString(f.Description), f.Fingerprint, f.AnchorID, f.OwnerID, string(f.AccessLevel),
		string(cols), string(rows), f.RowCount, f.ColumnCount, now, f.CreatedBy, f.UpdatedBy,
	).Scan(&f.ID)
	if err != nil {
		return mapErr(err)
	}
	f.CreatedAt, f.UpdatedAt = now, now
	return nil
}

// Update не меняет владельца и anchor.
func (s files) Update(ctx context.Context, f *model.DataFile) error {
	cols, rows, err := encodeContent(f)
	if err != nil {
		return err
	}
	now := s.t.now()
	err = s.t.tx.QueryRowContext(ctx, `
update data_files
set name = $2, description = $3, file_hash = $4, access_level = $5,
	column_definitions = $6::jsonb, data_rows = $7::jsonb, row_count = $8, column_count = $9,
	updated_at = $10, updated_by = $11
where id = $1
returning created_at, created_by`,
		f.ID, f.Name, nullString(f.Description), f.Fingerprint, string(f.AccessLevel),
		string(cols), string(rows), f.RowCount, f.ColumnCount, now, f.UpdatedBy,
	).Scan(&f.CreatedAt, &f.CreatedBy)
	if err != nil {
		return mapErr(err)
	}
	f.UpdatedAt = now
	return nil
}

func (s files) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.t.tx.ExecContext(ctx, `delete from data_files where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}
