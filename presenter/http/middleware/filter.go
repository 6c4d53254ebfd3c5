package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omni/tally-relay/presenter/http/render"
)

type ctxKey int

const (
	limitCtxKey ctxKey = iota
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var ErrInvalidLimit = errors.New("invalid limit parameter")

func GetLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := uint64(DefaultLimit)
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			var err error
			limit, err = strconv.ParseUint(limitStr, 10, 32)
			if err != nil {
				render.Error(w, r, http.StatusBadRequest, fmt.Errorf("failed to parse limit: %w", ErrInvalidLimit))
				return
			}
			if limit == 0 || limit > MaxLimit {
				render.Error(w, r, http.StatusBadRequest, fmt.Errorf("limit should be in [1, %d]: %w", MaxLimit, ErrInvalidLimit))
				return
			}
		}

		ctx := context.WithValue(r.Context(), limitCtxKey, limit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetLimit(ctx context.Context) uint64 {
	if limit, ok := ctx.Value(limitCtxKey).(uint64); ok {
		return limit
	}
	return DefaultLimit
}
