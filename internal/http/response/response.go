package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
)

// ErrorBody is the envelope every failed request returns. Meta carries
// error-specific detail like the retry budget or a conflicting timestamp.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Error writes err using the typed taxonomy's status mapping. Untyped errors
// surface as an opaque 500 so internals never leak to clients.
func Error(c *gin.Context, err error) {
	ae := apierr.AsError(err)
	if ae == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorBody{
			Code:    "internal_error",
			Message: "internal error",
		}})
		return
	}
	msg := "internal error"
	if apierr.IsRecoverable(ae) {
		msg = ae.Err.Error()
	}
	c.JSON(ae.Status, gin.H{"error": ErrorBody{
		Code:    ae.Code,
		Message: msg,
		Meta:    ae.Meta,
	}})
}

func OK(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

func Created(c *gin.Context, body any) {
	c.JSON(http.StatusCreated, body)
}
