package pg

import (
	"context"
	"database/sql"

	"datahub/internal/model"
)

const nodeCols = `id, name, description, type, parent_id, sort_order, created_at, updated_at, created_by, updated_by`

// сортировка узлов совпадает с store.SortNodes (побайтовое сравнение имён)
const nodeOrder = ` order by sort_order, name collate "C", id`

type nodes struct{ t *pgTx }

func scanNode(r scanner) (*model.Node, error) {
	var (
		n      model.Node
		desc   sql.NullString
		parent sql.NullInt64
		typ    string
	)
	if err := r.Scan(&n.ID, &n.Name, &desc, &typ, &parent, &n.SortOrder, &n.CreatedAt, &n.UpdatedAt, &n.CreatedBy, &n.UpdatedBy); err != nil {
		return nil, err
	}
	n.Description = stringPtr(desc)
	n.Type = model.NodeType(typ)
	if parent.Valid {
		p := parent.Int64
		n.ParentID = &p
	}
	return &n, nil
}

func (s nodes) query(ctx context.Context, q string, args ...any) ([]*model.Node, error) {
	rows, err := s.t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]*model.Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, mapErr(rows.Err())
}

func (s nodes) FindByID(ctx context.Context, id int64) (*model.Node, error) {
	n, err := scanNode(s.t.tx.QueryRowContext(ctx, `select `+nodeCols+` from organization_nodes where id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

func (s nodes) FindRoots(ctx context.Context) ([]*model.Node, error) {
	return s.query(ctx, `select `+nodeCols+` from organization_nodes where parent_id is null`+nodeOrder)
}

func (s nodes) FindChildren(ctx context.Context, parentID int64) ([]*model.Node, error) {
	return s.query(ctx, `select `+nodeCols+` from organization_nodes where parent_id = $1`+nodeOrder, parentID)
}

func (s nodes) FindAll(ctx context.Context) ([]*model.Node, error) {
	return s.query(ctx, `select `+nodeCols+` from organization_nodes`+nodeOrder)
}

func (s nodes) FindByNameSubstring(ctx context.Context, sub string) ([]*model.Node, error) {
	return s.query(ctx, `select `+nodeCols+` from organization_nodes where strpos(lower(name), lower($1)) > 0`+nodeOrder, sub)
}

func (s nodes) FindAncestors(ctx context.Context, id int64) ([]*model.Node, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.query(ctx, `
with recursive anc (id, parent_id, depth) as (
	select id, parent_id, 0 from organization_nodes where id = $1
	union all
	select p.id, p.parent_id, a.depth + 1
	from organization_nodes p join anc a on p.id = a.parent_id
	where a.depth < $2
)
select n.id, n.name, n.description, n.type, n.parent_id, n.sort_order, n.created_at, n.updated_at, n.created_by, n.updated_by
from anc join organization_nodes n on n.id = anc.id
where anc.depth > 0
order by anc.depth`, id, maxDepth)
}

func (s nodes) FindDescendants(ctx context.Context, id int64) ([]*model.Node, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.query(ctx, `
with recursive des (id, depth) as (
	select id, 0 from organization_nodes where id = $1
	union all
	select c.id, d.depth + 1
	from organization_nodes c join des d on c.parent_id = d.id
	where d.depth < $2
)
select n.id, n.name, n.description, n.type, n.parent_id, n.sort_order, n.created_at, n.updated_at, n.created_by, n.updated_by
from des join organization_nodes n on n.id = des.id
where des.depth > 0
order by des.depth, n.sort_order, n.name collate "C", n.id`, id, maxDepth)
}

func (s nodes) ExistsSiblingName(ctx context.Context, name string, parentID, excludeID *int64) (bool, error) {
	return exists(ctx, s.t.tx, `
select 1 from organization_nodes
where name = $1
  and parent_id is not distinct from $2
  and ($3::bigint is null or id <> $3)`, name, nullInt64(parentID), nullInt64(excludeID))
}

func (s nodes) CountChildren(ctx context.Context, parentID int64) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from organization_nodes where parent_id = $1`, parentID)
}

func (s nodes) CountFilesAnchored(ctx context.Context, id int64) (int64, error) {
	return count(ctx, s.t.tx, `select count(*) from data_files where organization_node_id = $1`, id)
}

func (s nodes) Insert(ctx context.Context, n *model.Node) error {
	now := s.t.now()
	err := s.t.tx.QueryRowContext(ctx, `
insert into organization_nodes (name, description, type, parent_id, sort_order, created_at, updated_at, created_by, updated_by)
values ($1, $2, $3, $4, $5, $6, $6, $7, $8)
returning id`,
		n.Name, nullString(n.Description), string(n.Type), nullInt64(n.ParentID), n.SortOrder, now, n.CreatedBy, n.UpdatedBy,
	).Scan(&n.ID)
	if err != nil {
		return mapErr(err)
	}
	n.CreatedAt, n.UpdatedAt = now, now
	return nil
}

// Update не меняет type: тип фиксируется при создании.
func (s nodes) Update(ctx context.Context, n *model.Node) error {
	now := s.t.now()
	err := s.t.tx.QueryRowContext(ctx, `
update organization_nodes
set name = $2, description = $3, parent_id = $4, sort_order = $5, updated_at = $6, updated_by = $7
where id = $1
returning created_at, created_by`,
		n.ID, n.Name, nullString(n.Description), nullInt64(n.ParentID), n.SortOrder, now, n.UpdatedBy,
	).Scan(&n.CreatedAt, &n.CreatedBy)
	if err != nil {
		return mapErr(err)
	}
	n.UpdatedAt = now
	return nil
}

func (s nodes) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.t.tx.ExecContext(ctx, `delete from organization_nodes where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}
