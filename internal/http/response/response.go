package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes 200 {ok:true, ...fields}.
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"ok": true}
	for key, value := range fields {
		body[key] = value
	}
	c.JSON(http.StatusOK, attachRequestID(c, body))
}

// Error writes {ok:false, message} with the given HTTP status.
func Error(c *gin.Context, statusCode int, msg string) {
	c.JSON(statusCode, attachRequestID(c, gin.H{
		"ok":      false,
		"message": msg,
	}))
}

func attachRequestID(c *gin.Context, body gin.H) gin.H {
	if c == nil {
		return body
	}
	value, ok := c.Get("request_id")
	if !ok {
		return body
	}
	if id, ok := value.(string); ok && id != "" {
		if _, exists := body["request_id"]; !exists {
			body["request_id"] = id
		}
	}
	return body
}
