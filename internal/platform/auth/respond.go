package auth

import (
	"net/http"

	"github.com/acrylicworks/api/internal/platform/httpx"
)

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
