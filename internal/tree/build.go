package tree

import (
	"datahub/internal/model"
	"datahub/internal/store"
)

// Build собирает лес из плоского списка узлов за один проход.
// Дети упорядочены по (sortOrder, name, id). Узел, чей родитель
// отсутствует в списке, считается корнем.
func Build(nodes []*model.Node) []*NodeDTO {
	byID := make(map[int64]*model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	grouped := make(map[int64][]*model.Node)
	var roots []*model.Node
	for _, n := range nodes {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[*n.ParentID]; !ok {
			roots = append(roots, n)
			continue
		}
		grouped[*n.ParentID] = append(grouped[*n.ParentID], n)
	}
	for _, kids := range grouped {
		store.SortNodes(kids)
	}
	store.SortNodes(roots)

	var attach func(n *model.Node, depth int) *NodeDTO
	attach = func(n *model.Node, depth int) *NodeDTO {
		d := toDTO(n)
		if n.ParentID != nil {
			if p, ok := byID[*n.ParentID]; ok {
				name := p.Name
				d.ParentName = &name
			}
		}
		kids := grouped[n.ID]
		d.ChildrenCount = int64(len(kids))
		// глубина не может превышать число узлов
		if depth > len(nodes) {
			return d
		}
		for _, k := range kids {
			d.Children = append(d.Children, attach(k, depth+1))
		}
		return d
	}

	out := make([]*NodeDTO, 0, len(roots))
	for _, r := range roots {
		out = append(out, attach(r, 0))
	}
	return out
}

// walk обходит лес в глубину.
func walk(forest []*NodeDTO, fn func(*NodeDTO)) {
	for _, d := range forest {
		fn(d)
		walk(d.Children, fn)
	}
}
