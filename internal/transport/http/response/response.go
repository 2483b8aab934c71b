package response

import "github.com/gin-gonic/gin"

const (
	CodeOK             = 0
	CodeBadRequest     = 40000
	CodeUnauthorized   = 40100
	CodeForbidden      = 40300
	CodeNotFound       = 40400
	CodeInternalServer = 50000

	CodePoolFull             = 42201
	CodeSessionLimitExceeded = 42202
	CodeStorageQuotaExceeded = 42203
	CodeFileTooLarge         = 42204
	CodeUnsupportedFormat    = 42205
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

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
