package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"datahub/internal/catalog"
	"datahub/internal/model"
	"datahub/internal/store"
	"datahub/internal/tree"
)

// ===== META HANDLERS =====

// GET /organization/node-types
func NodeTypesHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.NodeTypes())
	}
}

// GET /data-files/data-types
func DataTypesHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.DataTypes())
	}
}

type metaEnums struct {
	NodeTypes    []model.NodeType    `json:"nodeTypes"`
	DataTypes    []model.DataType    `json:"dataTypes"`
	AccessLevels []model.AccessLevel `json:"accessLevels"`
	Roles        []model.Role        `json:"roles"`
	SortFields   []store.SortField   `json:"sortFields"`
}

// GET /meta/enums: все перечисления одним ответом, для UI.
func MetaEnumsHandler() gin.HandlerFunc {
	out := metaEnums{
		NodeTypes:    model.NodeTypes(),
		DataTypes:    model.DataTypes(),
		AccessLevels: []model.AccessLevel{model.AccessPrivate, model.AccessPublic},
		Roles:        []model.Role{model.RoleAdmin, model.RoleUser},
		SortFields:   store.SortFields(),
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, out)
	}
}
