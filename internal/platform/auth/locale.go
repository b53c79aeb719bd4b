package auth

import (
	"context"
	"strings"
)

// UserLocaleResolver returns a lookup that reads the locale custom claim from
// a user's Firebase record. Users without the claim resolve to an empty
// string, which callers treat as "use the default locale".
func UserLocaleResolver(users UserGetter) func(ctx context.Context, uid string) (string, error) {
	return func(ctx context.Context, uid string) (string, error) {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			return "", nil
		}
		record, err := users.GetUser(ctx, uid)
		if err != nil {
			return "", err
		}
		if record == nil || record.CustomClaims == nil {
			return "", nil
		}
		locale, _ := record.CustomClaims[defaultLocaleClaim].(string)
		return strings.TrimSpace(locale), nil
	}
}
