// Package tree implements the organizational tree: a rooted forest of
// DEPARTMENT / TEAM / BUSINESS_DIRECTION / MODULE nodes with unique
// sibling names and no cycles.
package tree

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"datahub/internal/apperr"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"
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

// Tree возвращает весь лес с проставленными счётчиками.
func (s *Service) Tree(ctx context.Context) ([]*NodeDTO, error) {
	var out []*NodeDTO
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		all, err := tx.Nodes().FindAll(ctx)
		if err != nil {
			return err
		}
		out = Build(all)
		return fillFileCounts(ctx, tx, out)
	})
	return out, err
}

func fillFileCounts(ctx context.Context, tx store.Tx, forest []*NodeDTO) error {
	var firstErr error
	walk(forest, func(d *NodeDTO) {
		if firstErr != nil {
			return
		}
		n, err := tx.Nodes().CountFilesAnchored(ctx, d.ID)
		if err != nil {
			firstErr = err
			return
		}
		d.DataFilesCount = n
	})
	return firstErr
}

// Children: прямые потомки parentID; nil означает корни.
func (s *Service) Children(ctx context.Context, parentID *int64) ([]*NodeDTO, error) {
	var out []*NodeDTO
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var (
			nodes []*model.Node
			err   error
		)
		if parentID == nil {
			nodes, err = tx.Nodes().FindRoots(ctx)
		} else {
			if _, err := loadNode(ctx, tx, *parentID, apperr.ReasonParent); err != nil {
				return err
			}
			nodes, err = tx.Nodes().FindChildren(ctx, *parentID)
		}
		if err != nil {
			return err
		}
		out, err = decorate(ctx, tx, nodes)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id int64) (*NodeDTO, error) {
	var out *NodeDTO
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		n, err := loadNode(ctx, tx, id, "")
		if err != nil {
			return err
		}
		list, err := decorate(ctx, tx, []*model.Node{n})
		if err != nil {
			return err
		}
		out = list[0]
		return nil
	})
	return out, err
}

// Search: пустой keyword возвращает дерево, иначе плоский список совпадений по имени.
func (s *Service) Search(ctx context.Context, keyword string) ([]*NodeDTO, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.Tree(ctx)
	}
	var out []*NodeDTO
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		nodes, err := tx.Nodes().FindByNameSubstring(ctx, keyword)
		if err != nil {
			return err
		}
		out, err = decorate(ctx, tx, nodes)
		return err
	})
	return out, err
}

func (s *Service) Stats(ctx context.Context, id int64) (*Stats, error) {
	var out *Stats
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		n, err := loadNode(ctx, tx, id, "")
		if err != nil {
			return err
		}
		children, err := tx.Nodes().CountChildren(ctx, id)
		if err != nil {
			return err
		}
		files, err := tx.Nodes().CountFilesAnchored(ctx, id)
		if err != nil {
			return err
		}
		out = &Stats{
			ID: n.ID, Name: n.Name, Type: n.Type,
			ChildrenCount: children, DataFilesCount: files,
			CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
		}
		return nil
	})
	return out, err
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*NodeDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid(apperr.ReasonValidation, "node name is required").WithDetail("name", "must not be blank")
	}
	if !req.Type.Valid() {
		return nil, apperr.Invalid(apperr.ReasonValidation, "unknown node type %q", req.Type).WithDetail("type", "unknown node type")
	}

	var out *NodeDTO
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		if req.ParentID != nil {
			if _, err := loadNode(ctx, tx, *req.ParentID, apperr.ReasonParent); err != nil {
				return err
			}
		}
		dup, err := tx.Nodes().ExistsSiblingName(ctx, name, req.ParentID, nil)
		if err != nil {
			return err
		}
		if dup {
			return nameTaken(name)
		}

		n := &model.Node{
			Name:        name,
			Description: req.Description,
			Type:        req.Type,
			ParentID:    req.ParentID,
		}
		if req.SortOrder != nil {
			n.SortOrder = *req.SortOrder
		}
		n.CreatedBy, n.UpdatedBy = p.Username, p.Username
		if err := tx.Nodes().Insert(ctx, n); err != nil {
			return err
		}
		list, err := decorate(ctx, tx, []*model.Node{n})
		if err != nil {
			return err
		}
		out = list[0]
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err, name)
	}
	s.log.InfoContext(ctx, "organization node created", "node_id", out.ID, "name", out.Name, "type", out.Type, "by", p.Username)
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*NodeDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid(apperr.ReasonValidation, "node name is required").WithDetail("name", "must not be blank")
	}

	var out *NodeDTO
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		n, err := loadNode(ctx, tx, id, "")
		if err != nil {
			return err
		}
		if name != n.Name {
			dup, err := tx.Nodes().ExistsSiblingName(ctx, name, n.ParentID, &n.ID)
			if err != nil {
				return err
			}
			if dup {
				return nameTaken(name)
			}
		}
		n.Name = name
		n.Description = req.Description
		if req.SortOrder != nil {
			n.SortOrder = *req.SortOrder
		}
		n.UpdatedBy = p.Username
		if err := tx.Nodes().Update(ctx, n); err != nil {
			return err
		}
		list, err := decorate(ctx, tx, []*model.Node{n})
		if err != nil {
			return err
		}
		out = list[0]
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err, name)
	}
	s.log.InfoContext(ctx, "organization node updated", "node_id", id, "by", p.Username)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	p, err := identity.Current(ctx)
	if err != nil {
		return err
	}
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		if _, err := loadNode(ctx, tx, id, ""); err != nil {
			return err
		}
		children, err := tx.Nodes().CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return apperr.Conflict(apperr.ReasonHasChildren, "node %d has %d child node(s)", id, children)
		}
		files, err := tx.Nodes().CountFilesAnchored(ctx, id)
		if err != nil {
			return err
		}
		if files > 0 {
			return apperr.Conflict(apperr.ReasonHasFiles, "node %d has %d data file(s)", id, files)
		}
		return tx.Nodes().DeleteByID(ctx, id)
	})
	if err != nil {
		return mapWriteErr(err, "")
	}
	s.log.InfoContext(ctx, "organization node deleted", "node_id", id, "by", p.Username)
	return nil
}

// Move переносит узел под нового родителя (nil означает корни).
func (s *Service) Move(ctx context.Context, id int64, newParentID *int64) (*NodeDTO, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	var out *NodeDTO
	var name string
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		n, err := loadNode(ctx, tx, id, "")
		if err != nil {
			return err
		}
		name = n.Name
		if newParentID != nil {
			if *newParentID == id {
				return apperr.Invalid(apperr.ReasonSelfMove, "node %d cannot be its own parent", id)
			}
			if _, err := loadNode(ctx, tx, *newParentID, apperr.ReasonParent); err != nil {
				return err
			}
			ancestors, err := tx.Nodes().FindAncestors(ctx, *newParentID)
			if err != nil {
				return err
			}
			for _, a := range ancestors {
				if a.ID == id {
					return apperr.Invalid(apperr.ReasonCycle, "node %d cannot be moved under its descendant %d", id, *newParentID)
				}
			}
		}
		// тот же родитель: меняется только аудит
		if !model.SameParent(n.ParentID, newParentID) {
			dup, err := tx.Nodes().ExistsSiblingName(ctx, n.Name, newParentID, &n.ID)
			if err != nil {
				return err
			}
			if dup {
				return nameTaken(n.Name)
			}
			n.ParentID = newParentID
		}
		n.UpdatedBy = p.Username
		if err := tx.Nodes().Update(ctx, n); err != nil {
			return err
		}
		list, err := decorate(ctx, tx, []*model.Node{n})
		if err != nil {
			return err
		}
		out = list[0]
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err, name)
	}
	var parent any = "root"
	if newParentID != nil {
		parent = *newParentID
	}
	s.log.InfoContext(ctx, "organization node moved", "node_id", id, "parent_id", parent, "by", p.Username)
	return out, nil
}

func (s *Service) NodeTypes() []model.NodeType { return model.NodeTypes() }

// ==== helpers ====

// decorate превращает узлы в DTO с parentName и счётчиками; порядок сохраняется.
func decorate(ctx context.Context, tx store.Tx, nodes []*model.Node) ([]*NodeDTO, error) {
	parents := make(map[int64]string)
	out := make([]*NodeDTO, 0, len(nodes))
	for _, n := range nodes {
		d := toDTO(n)
		if n.ParentID != nil {
			name, ok := parents[*n.ParentID]
			if !ok {
				p, err := tx.Nodes().FindByID(ctx, *n.ParentID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
				if p != nil {
					name = p.Name
				}
				parents[*n.ParentID] = name
			}
			if name != "" {
				d.ParentName = &name
			}
		}
		var err error
		if d.ChildrenCount, err = tx.Nodes().CountChildren(ctx, n.ID); err != nil {
			return nil, err
		}
		if d.DataFilesCount, err = tx.Nodes().CountFilesAnchored(ctx, n.ID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func loadNode(ctx context.Context, tx store.Tx, id int64, reason string) (*model.Node, error) {
	n, err := tx.Nodes().FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if reason == apperr.ReasonParent {
			return nil, apperr.NotFound(reason, "parent node %d not found", id)
		}
		return nil, apperr.NotFound(reason, "organization node %d not found", id)
	}
	return n, err
}

func nameTaken(name string) error {
	return apperr.Conflict(apperr.ReasonName, "a sibling named %q already exists", name)
}

// mapWriteErr переводит ошибки хранилища в ошибки сервиса. Вызывается только
// после WriteTx: внутри транзакции ошибки store возвращаются как есть, иначе
// хранилище не распознает ErrConflict и не повторит транзакцию.
func mapWriteErr(err error, name string) error {
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return nameTaken(name)
	case errors.Is(err, store.ErrConflict):
		e := apperr.Conflict("", "concurrent modification, retry the request")
		e.Err = err
		return e
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("", "organization node not found")
	}
	return err
}
