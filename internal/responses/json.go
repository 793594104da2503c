package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, APIResponse{
		Status:  "error",
		Message: message,
	})
}

// FetchResult is the fetch contract shape: {success, data} on success and
// {success: false, error} on failure.
type FetchResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func FetchOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, FetchResult{Success: true, Data: data})
}

func FetchFail(c *gin.Context, statusCode int, err error) {
	c.JSON(statusCode, FetchResult{Success: false, Error: err.Error()})
}
