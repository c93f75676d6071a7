package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"profilehub/api/internal/apperr"
	"profilehub/api/internal/service"
)

// respondError translates service failures into HTTP responses. Internal
// causes are logged with the request id and replaced by a generic message;
// client-fixable rejections keep their specific reason.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again later"})
		return
	}

	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		h.log.Error().
			Err(appErr).
			Str("request_id", c.Writer.Header().Get("X-Request-Id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.ClientMessage()})
}
