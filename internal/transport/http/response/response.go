package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                = 0
	CodeBadRequest        = 40000
	CodeDocumentNotReady  = 40001
	CodeMissingCredential = 40002
	CodeUnauthorized      = 40100
	CodeForbidden         = 40300
	CodeChatNotFound      = 40401
	CodeDocumentNotFound  = 40402
	CodeFileNotFound      = 40403
	CodeConflict          = 40900
	CodeChatBusy          = 40901
	CodeInternalServer    = 50000
	CodeUpstream          = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Accepted answers 202 for work that finishes asynchronously.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
