package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

type DocumentHandler struct {
	ingest *app.IngestService
}

func NewDocumentHandler(ingest *app.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// IngestFile indexes and summarizes one stored file synchronously. The
// response carries the file with its final status.
func (h *DocumentHandler) IngestFile(c *gin.Context) {
	_, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := h.ingest.IngestFile(c.Request.Context(), orgID, c.Param("id"), c.Param("fileId"))
	if err != nil {
		writeServiceError(c, err, "ingest file failed")
		return
	}
	response.OK(c, file)
}
