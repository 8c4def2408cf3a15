package devserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// BearerAuth rejects requests without the configured token
func BearerAuth(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		got, ok := strings.CutPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abortWithError(ctx, &routeError{status: http.StatusUnauthorized, summary: SummaryInvalidToken})
			return
		}
		ctx.Next()
	}
}

// RateLimiter limits requests per client ip. Each call gets its own store.
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}
	lim := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(
		lim,
		mgin.WithLimitReachedHandler(func(ctx *gin.Context) {
			ctx.PureJSON(http.StatusTooManyRequests, APIError{
				ErrorSummary: SummaryRateLimited,
				UserMessage:  "rate limit exceeded",
			})
		}),
		mgin.WithErrorHandler(func(ctx *gin.Context, err error) {
			ctx.PureJSON(http.StatusInternalServerError, APIError{
				ErrorSummary: SummaryInternal,
				UserMessage:  err.Error(),
			})
		}),
	), nil
}
