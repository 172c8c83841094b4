package tree

import (
	"time"

	"datahub/internal/model"
)

// NodeDTO: представление узла наружу.
type NodeDTO struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    *string        `json:"description,omitempty"`
	Type           model.NodeType `json:"type"`
	ParentID       *int64         `json:"parentId"`
	ParentName     *string        `json:"parentName,omitempty"`
	SortOrder      int            `json:"sortOrder"`
	Children       []*NodeDTO     `json:"children"`
	ChildrenCount  int64          `json:"childrenCount"`
	DataFilesCount int64          `json:"dataFilesCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	UpdatedBy      string         `json:"updatedBy,omitempty"`
}

type CreateRequest struct {
	Name        string         `json:"name" binding:"required,min=2,max=50"`
	Description *string        `json:"description" binding:"omitempty,max=200"`
	Type        model.NodeType `json:"type" binding:"required"`
	ParentID    *int64         `json:"parentId"`
	SortOrder   *int           `json:"sortOrder"`
}

// UpdateRequest не трогает тип и родителя; для родителя есть Move.
type UpdateRequest struct {
	Name        string  `json:"name" binding:"required,min=2,max=50"`
	Description *string `json:"description" binding:"omitempty,max=200"`
	SortOrder   *int    `json:"sortOrder"`
}

type MoveRequest struct {
	ParentID *int64 `json:"parentId"`
}

type Stats struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Type           model.NodeType `json:"type"`
	ChildrenCount  int64          `json:"childrenCount"`
	DataFilesCount int64          `json:"dataFilesCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func toDTO(n *model.Node) *NodeDTO {
	return &NodeDTO{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		Type:        n.Type,
		ParentID:    n.ParentID,
		SortOrder:   n.SortOrder,
		Children:    []*NodeDTO{},
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		CreatedBy:   n.CreatedBy,
		UpdatedBy:   n.UpdatedBy,
	}
}
