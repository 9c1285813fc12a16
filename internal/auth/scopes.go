package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
)

const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeWorkflowRead  = "workflow:read"
	ScopeWorkflowWrite = "workflow:write"
)

// AllScopes is what interactive clients (Swagger UI) ask for.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeWorkflowRead,
	ScopeWorkflowWrite,
}

// scopeList decodes the scp claim, which issuers send either as an array
// or as a space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*s = strings.Fields(joined)
	return nil
}

type scopesKey struct{}

// WithScopes records the scopes granted to a bearer token.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey{}, scopes)
}

// HasScope reports whether the caller may act with scope. Only bearer
// callers are restricted; session and bypass callers hold every scope.
func HasScope(ctx context.Context, scope string) bool {
	granted, ok := ctx.Value(scopesKey{}).([]string)
	if !ok {
		return true
	}
	return slices.Contains(granted, scope)
}

// RequireWorkflowScope demands workflow:read for reads and rule evaluation
// and workflow:write for every other request.
func RequireWorkflowScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		need := ScopeWorkflowWrite
		switch {
		case r.Method == http.MethodGet, r.Method == http.MethodHead, r.Method == http.MethodOptions:
			need = ScopeWorkflowRead
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/rules/evaluate"):
			need = ScopeWorkflowRead
		}
		if !HasScope(r.Context(), need) {
			http.Error(w, "missing scope "+need, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
