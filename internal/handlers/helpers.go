package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/auth"
	"github.com/fabriqly/api/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func stringPointer(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parsePagination(r *http.Request) (domain.Pagination, error) {
	pager := domain.Pagination{
		PageSize:  defaultPageSize,
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	}
	raw := strings.TrimSpace(r.URL.Query().Get("page_size"))
	if raw == "" {
		return pager, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return domain.Pagination{}, errors.New("page_size must be a positive integer")
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	pager.PageSize = size
	return pager, nil
}

// actorFromIdentity maps the authenticated principal to a workflow actor.
// Role precedence mirrors claim precedence: admins keep admin authority even
// when they also carry a marketplace role.
func actorFromIdentity(identity *auth.Identity) services.Actor {
	if identity == nil {
		return services.Actor{}
	}
	actor := services.Actor{ID: identity.UID, Admin: identity.IsAdmin()}
	switch {
	case identity.HasRole(auth.RoleAdmin):
		actor.Role = domain.RoleAdmin
	case identity.HasRole(auth.RoleDesigner):
		actor.Role = domain.RoleDesigner
	case identity.HasRole(auth.RoleShopOwner):
		actor.Role = domain.RoleShopOwner
	default:
		actor.Role = domain.RoleCustomer
	}
	return actor
}

func requireIdentity(r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
