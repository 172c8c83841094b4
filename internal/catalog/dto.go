package catalog

import (
	"time"

	"datahub/internal/model"
)

type FileDTO struct {
	ID                   int64                    `json:"id"`
	Name                 string                   `json:"name"`
	Description          *string                  `json:"description,omitempty"`
	FileHash             string                   `json:"fileHash"`
	OrganizationNodeID   int64                    `json:"organizationNodeId"`
	OrganizationNodeName string                   `json:"organizationNodeName"`
	OrganizationNodePath string                   `json:"organizationNodePath"`
	OwnerID              int64                    `json:"ownerId"`
	OwnerName            string                   `json:"ownerName"`
	AccessLevel          model.AccessLevel        `json:"accessLevel"`
	ColumnDefinitions    []model.ColumnDefinition `json:"columnDefinitions"`
	DataRows             []model.Row              `json:"dataRows"`
	RowCount             int                      `json:"rowCount"`
	ColumnCount          int                      `json:"columnCount"`
	CreatedAt            time.Time                `json:"createdAt"`
	UpdatedAt            time.Time                `json:"updatedAt"`
	CreatedBy            string                   `json:"createdBy,omitempty"`
	UpdatedBy            string                   `json:"updatedBy,omitempty"`
}

type CreateRequest struct {
	Name               string                   `json:"name" binding:"required,min=2,max=100"`
	Description        *string                  `json:"description" binding:"omitempty,max=500"`
	OrganizationNodeID int64                    `json:"organizationNodeId" binding:"required"`
	AccessLevel        model.AccessLevel        `json:"accessLevel"`
	ColumnDefinitions  []model.ColumnDefinition `json:"columnDefinitions"`
	DataRows           []model.Row              `json:"dataRows"`
}

// UpdateRequest: nil-поля не меняются; колонки и строки заменяются целиком.
type UpdateRequest struct {
	Name              *string                   `json:"name" binding:"omitempty,min=2,max=100"`
	Description       *string                   `json:"description" binding:"omitempty,max=500"`
	AccessLevel       *model.AccessLevel        `json:"accessLevel"`
	ColumnDefinitions *[]model.ColumnDefinition `json:"columnDefinitions"`
	DataRows          *[]model.Row              `json:"dataRows"`
}

// QueryRequest: тело POST /data-files/query. Page начинается с 1.
type QueryRequest struct {
	Name               string             `json:"name"`
	OrganizationNodeID *int64             `json:"organizationNodeId"`
	OwnerID            *int64             `json:"ownerId"`
	AccessLevel        *model.AccessLevel `json:"accessLevel"`
	DataType           *model.DataType    `json:"dataType"`
	Page               *int               `json:"page"`
	Size               *int               `json:"size"`
	SortBy             string             `json:"sortBy"`
	SortDirection      string             `json:"sortDirection"`
}

type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func newPage[T any](content []T, page, size int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{Content: content, Page: page, Size: size, TotalElements: total, TotalPages: pages}
}

type Statistics struct {
	TotalFiles     int64   `json:"totalFiles"`
	PublicFiles    int64   `json:"publicFiles"`
	PrivateFiles   int64   `json:"privateFiles"`
	AvgRowCount    float64 `json:"avgRowCount"`
	AvgColumnCount float64 `json:"avgColumnCount"`
}
