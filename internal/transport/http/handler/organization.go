package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

type OrganizationHandler struct {
	credentials *app.CredentialService
}

type SetCredentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

func NewOrganizationHandler(credentials *app.CredentialService) *OrganizationHandler {
	return &OrganizationHandler{credentials: credentials}
}

// SetCredential replaces the organization's model API key. Callers may only
// write their own organization.
func (h *OrganizationHandler) SetCredential(c *gin.Context) {
	_, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if c.Param("id") != orgID {
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "organization mismatch")
		return
	}

	var req SetCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if err := h.credentials.SetModelCredential(c.Request.Context(), orgID, req.APIKey); err != nil {
		writeServiceError(c, err, "set credential failed")
		return
	}
	response.OK(c, gin.H{"organization_id": orgID})
}
