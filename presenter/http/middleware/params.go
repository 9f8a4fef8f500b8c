package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/omni/ethy-witness/presenter/http/render"
)

type ctxKey int

const eventIDCtxKey ctxKey = iota

func GetEventIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventIDStr := chi.URLParam(r, "eventID")

		eventID, err := strconv.ParseUint(eventIDStr, 10, 64)
		if err != nil {
			render.JSON(w, r, http.StatusBadRequest, fmt.Sprintf("invalid event id %q", eventIDStr))
			return
		}

		ctx := context.WithValue(r.Context(), eventIDCtxKey, eventID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func EventID(ctx context.Context) uint64 {
	if id, ok := ctx.Value(eventIDCtxKey).(uint64); ok {
		return id
	}
	return 0
}
