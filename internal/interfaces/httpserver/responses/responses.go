// Package responses renders the wire-level error envelope and the SSE
// stream framing shared by every handler.
package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// ErrorBody is the inner error object clients switch on.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	Error      ErrorBody `json:"error"`
	StatusCode int       `json:"status_code"`
}

// HandleError maps an error onto the envelope and aborts the request.
// Typed platform errors carry their own status; anything else is an
// internal error with no detail leaked.
func HandleError(c *gin.Context, err error) {
	status, body := render(c, err)
	c.Set("error_code", body.Code)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: body, StatusCode: status})
}

// HandleNewError is HandleError for errors constructed at the route
// layer. Kept as a separate name so call sites read as intent.
func HandleNewError(c *gin.Context, err error) {
	HandleError(c, err)
}

func render(c *gin.Context, err error) (int, ErrorBody) {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		status := platformerrors.ErrorTypeToHTTPStatus(platformErr.Type)
		body := ErrorBody{
			Code:    string(platformErr.Type),
			Message: platformErr.Message,
			Details: map[string]any{"error_uuid": platformErr.UUID},
		}
		if requestID := c.GetString("X-Request-Id"); requestID != "" {
			body.Details["request_id"] = requestID
		}
		return status, body
	}

	body := ErrorBody{
		Code:    string(platformerrors.ErrorTypeInternal),
		Message: "internal server error",
	}
	return http.StatusInternalServerError, body
}
