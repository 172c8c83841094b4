package api

import (
	"github.com/gin-gonic/gin"

	"datahub/internal/apperr"
	"datahub/internal/catalog"
	"datahub/internal/model"
)

// POST /data-files
func CreateFileHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.CreateRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Create(c.Request.Context(), req)
		respondCreated(c, out, err)
	}
}

// PUT /data-files/:id
func UpdateFileHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req catalog.UpdateRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Update(c.Request.Context(), id, req)
		respond(c, out, err)
	}
}

// DELETE /data-files/:id
func DeleteFileHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		respondNoContent(c, s.Delete(c.Request.Context(), id))
	}
}

// GET /data-files/:id
func GetFileHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		out, err := s.Get(c.Request.Context(), id)
		respond(c, out, err)
	}
}

// POST /data-files/query
func QueryFilesHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req catalog.QueryRequest
		// пустое тело = запрос по умолчанию
		if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
			return
		}
		page, err := s.Query(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		writePage(c, page)
	}
}

// GET /data-files/accessible?page=&size=
func AccessibleFilesHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := queryInt(c, "page", 0)
		if !ok {
			return
		}
		size, ok := queryInt(c, "size", catalog.DefaultPageSize)
		if !ok {
			return
		}
		out, err := s.Accessible(c.Request.Context(), page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		writePage(c, out)
	}
}

// GET /data-files/organization/:anchorId
func FilesByAnchorHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "anchorId")
		if !ok {
			return
		}
		out, err := s.ByAnchor(c.Request.Context(), id)
		respond(c, out, err)
	}
}

// GET /data-files/owner/:ownerId
func FilesByOwnerHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "ownerId")
		if !ok {
			return
		}
		out, err := s.ByOwner(c.Request.Context(), id)
		respond(c, out, err)
	}
}

// GET /data-files/search?keyword=
func SearchFilesHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Search(c.Request.Context(), c.Query("keyword"))
		respond(c, out, err)
	}
}

// GET /data-files/data-type/:dataType
func FilesByDataTypeHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		dt, valid := model.ParseDataType(c.Param("dataType"))
		if !valid {
			writeError(c, apperr.Invalid(apperr.ReasonValidation, "unknown data type %q", c.Param("dataType")).
				WithDetail("dataType", "unknown data type"))
			return
		}
		out, err := s.ByDataType(c.Request.Context(), dt)
		respond(c, out, err)
	}
}

// GET /data-files/recent?limit=
func RecentFilesHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryInt(c, "limit", catalog.DefaultRecentLimit)
		if !ok {
			return
		}
		out, err := s.Recent(c.Request.Context(), limit)
		respond(c, out, err)
	}
}

// GET /data-files/statistics
func FileStatisticsHandler(s *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Statistics(c.Request.Context())
		respond(c, out, err)
	}
}
