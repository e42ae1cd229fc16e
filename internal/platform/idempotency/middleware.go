package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	HeaderKey       = "Idempotency-Key"
	HeaderLegacyKey = "X-Idempotency-Key"
	HeaderReplayed  = "X-Idempotency-Replayed"

	claimTTL = 2 * time.Minute
)

// Middleware caches successful (2xx) responses of POST, PUT and PATCH
// requests carrying an Idempotency-Key and replays them on retry. Keys are
// scoped to the practice. A key reused for another method or path yields
// 422; a duplicate arriving while the first is still running yields 409.
// Failed responses are not cached, so the client may retry with the same key.
func Middleware(store Store, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			method := req.Method
			if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
				return next(c)
			}

			clientKey := req.Header.Get(HeaderKey)
			if clientKey == "" {
				clientKey = req.Header.Get(HeaderLegacyKey)
			}
			if clientKey == "" {
				return next(c)
			}
			if len(clientKey) > 255 {
				return echo.NewHTTPError(http.StatusBadRequest, "idempotency key too long")
			}

			ctx := req.Context()
			key := scopedKey(c, clientKey)
			path := req.URL.Path

			cached, found, err := store.Get(ctx, key)
			if err != nil {
				logger.Warn().Err(err).Str("idempotency_key", clientKey).Msg("idempotency lookup failed, executing request")
				return next(c)
			}
			if found {
				if cached.Method != method || cached.Path != path {
					return echo.NewHTTPError(http.StatusUnprocessableEntity,
						"idempotency key was already used for a different operation")
				}
				return replay(c, cached)
			}

			claimed, err := store.Claim(ctx, key, claimTTL)
			if err != nil {
				logger.Warn().Err(err).Str("idempotency_key", clientKey).Msg("idempotency claim failed, executing request")
				return next(c)
			}
			if !claimed {
				return echo.NewHTTPError(http.StatusConflict, "a request with this idempotency key is already in progress")
			}
			defer func() {
				// The request context may already be cancelled here.
				relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.Release(relCtx, key); err != nil {
					logger.Warn().Err(err).Str("idempotency_key", clientKey).Msg("idempotency release failed")
				}
			}()

			origWriter := c.Response().Writer
			rec := &recorder{
				ResponseWriter: origWriter,
				body:           &bytes.Buffer{},
				statusCode:     http.StatusOK,
				headers:        make(http.Header),
			}
			c.Response().Writer = rec

			handlerErr := next(c)
			c.Response().Writer = origWriter
			if handlerErr != nil {
				return handlerErr
			}

			if rec.statusCode >= 200 && rec.statusCode < 300 {
				entry := &Entry{
					Key:        clientKey,
					Method:     method,
					Path:       path,
					StatusCode: rec.statusCode,
					Headers:    rec.headers.Clone(),
					Body:       rec.body.Bytes(),
				}
				if err := store.Set(ctx, key, entry); err != nil {
					logger.Warn().Err(err).Str("idempotency_key", clientKey).Msg("idempotency store failed")
				}
			}

			for k, vals := range rec.headers {
				origWriter.Header()[k] = vals
			}
			origWriter.WriteHeader(rec.statusCode)
			_, err = origWriter.Write(rec.body.Bytes())
			return err
		}
	}
}

func scopedKey(c echo.Context, clientKey string) string {
	tenant, _ := c.Get("tenant_id").(string)
	return tenant + ":" + clientKey
}

func replay(c echo.Context, cached *Entry) error {
	resp := c.Response()
	for k, vals := range cached.Headers {
		resp.Header()[k] = vals
	}
	resp.Header().Set(HeaderReplayed, "true")
	resp.WriteHeader(cached.StatusCode)
	_, err := resp.Write(cached.Body)
	return err
}

type recorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	headers    http.Header
	wroteHead  bool
}

func (r *recorder) Header() http.Header {
	return r.headers
}

func (r *recorder) WriteHeader(code int) {
	r.statusCode = code
	r.wroteHead = true
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHead {
		r.statusCode = http.StatusOK
		r.wroteHead = true
	}
	return r.body.Write(b)
}
