package catalog

import (
	"context"
	"errors"
	"strings"

	"datahub/internal/model"
	"datahub/internal/store"
)

// assembler строит FileDTO пачкой; цепочки предков и имена владельцев
// кешируются на время одной пачки.
type assembler struct {
	tx     store.Tx
	chains map[int64][]string
	owners map[int64]string
}

func newAssembler(tx store.Tx) *assembler {
	return &assembler{tx: tx, chains: make(map[int64][]string), owners: make(map[int64]string)}
}

// chain: имена от корня до anchor включительно.
func (a *assembler) chain(ctx context.Context, anchorID int64) ([]string, error) {
	if c, ok := a.chains[anchorID]; ok {
		return c, nil
	}
	anchor, err := a.tx.Nodes().FindByID(ctx, anchorID)
	if errors.Is(err, store.ErrNotFound) {
		a.chains[anchorID] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ancestors, err := a.tx.Nodes().FindAncestors(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		names = append(names, ancestors[i].Name)
	}
	names = append(names, anchor.Name)
	a.chains[anchorID] = names
	return names, nil
}

func (a *assembler) ownerName(ctx context.Context, ownerID int64) (string, error) {
	if n, ok := a.owners[ownerID]; ok {
		return n, nil
	}
	u, err := a.tx.Users().FindByID(ctx, ownerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	name := ""
	if u != nil {
		name = u.DisplayName()
	}
	a.owners[ownerID] = name
	return name, nil
}

func (a *assembler) one(ctx context.Context, f *model.DataFile) (*FileDTO, error) {
	chain, err := a.chain(ctx, f.AnchorID)
	if err != nil {
		return nil, err
	}
	owner, err := a.ownerName(ctx, f.OwnerID)
	if err != nil {
		return nil, err
	}
	d := &FileDTO{
		ID:                   f.ID,
		Name:                 f.Name,
		Description:          f.Description,
		FileHash:             f.Fingerprint,
		OrganizationNodeID:   f.AnchorID,
		OrganizationNodePath: strings.Join(chain, "/"),
		OwnerID:              f.OwnerID,
		OwnerName:            owner,
		AccessLevel:          f.AccessLevel,
		ColumnDefinitions:    f.Columns,
		DataRows:             f.Rows,
		RowCount:             f.RowCount,
		ColumnCount:          f.ColumnCount,
		CreatedAt:            f.CreatedAt,
		UpdatedAt:            f.UpdatedAt,
		CreatedBy:            f.CreatedBy,
		UpdatedBy:            f.UpdatedBy,
	}
	if len(chain) > 0 {
		d.OrganizationNodeName = chain[len(chain)-1]
	}
	if d.ColumnDefinitions == nil {
		d.ColumnDefinitions = []model.ColumnDefinition{}
	}
	if d.DataRows == nil {
		d.DataRows = []model.Row{}
	}
	return d, nil
}

func (a *assembler) many(ctx context.Context, files []*model.DataFile) ([]*FileDTO, error) {
	out := make([]*FileDTO, 0, len(files))
	for _, f := range files {
		d, err := a.one(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
