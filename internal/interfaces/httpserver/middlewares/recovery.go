package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/responses"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// Recovery converts handler panics into the standard internal-error
// envelope instead of gin's default plain-text page.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str("request_id", RequestIDFromContext(c)).
					Msg("handler panicked")

				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
					Error: responses.ErrorBody{
						Code:    string(platformerrors.ErrorTypeInternal),
						Message: "internal server error",
						Details: map[string]any{"request_id": RequestIDFromContext(c)},
					},
					StatusCode: http.StatusInternalServerError,
				})
			}
		}()
		c.Next()
	}
}
