package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest         = 40000
	CodeFileRequired       = 40001
	CodeUserRequired       = 40002
	CodeMessageEmpty       = 40003
	CodeNoExtractedText    = 40004
	CodeUnsupportedFile    = 40005
	CodeFileTooLarge       = 40006
	CodeUserIDTooLong      = 40007
	CodeMessageTooLong     = 40008
	CodeUnauthorized       = 40100
	CodeDocumentNotFound   = 40401
	CodeInternalServer     = 50000
	CodeOracleFailed       = 50201
	CodeOracleUnavailable  = 50301
	CodeDependencyDegraded = 50302
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON writes a bare payload; the SPA consumes entities without an envelope.
func JSON(c *gin.Context, httpStatus int, data interface{}) {
	c.JSON(httpStatus, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIError{
		Code:    code,
		Message: message,
	})
}

func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIError{
		Code:    code,
		Message: message,
	})
}
