package api

import (
	"github.com/gin-gonic/gin"

	"datahub/internal/tree"
)

// GET /organization/tree
func TreeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Tree(c.Request.Context())
		respond(c, out, err)
	}
}

// GET /organization/nodes?parentId=
func ChildrenHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent, ok := optionalID(c, "parentId")
		if !ok {
			return
		}
		out, err := s.Children(c.Request.Context(), parent)
		respond(c, out, err)
	}
}

// GET /organization/nodes/:id
func GetNodeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		out, err := s.Get(c.Request.Context(), id)
		respond(c, out, err)
	}
}

// POST /organization/nodes
func CreateNodeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tree.CreateRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Create(c.Request.Context(), req)
		respondCreated(c, out, err)
	}
}

// PUT /organization/nodes/:id
func UpdateNodeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req tree.UpdateRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Update(c.Request.Context(), id, req)
		respond(c, out, err)
	}
}

// DELETE /organization/nodes/:id
func DeleteNodeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		respondNoContent(c, s.Delete(c.Request.Context(), id))
	}
}

// PUT /organization/nodes/:id/move
func MoveNodeHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req tree.MoveRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Move(c.Request.Context(), id, req.ParentID)
		respond(c, out, err)
	}
}

// GET /organization/search?keyword=
func SearchNodesHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Search(c.Request.Context(), c.Query("keyword"))
		respond(c, out, err)
	}
}

// GET /organization/nodes/:id/stats
func NodeStatsHandler(s *tree.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		out, err := s.Stats(c.Request.Context(), id)
		respond(c, out, err)
	}
}
