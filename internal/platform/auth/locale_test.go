package auth

import (
	"context"
	"errors"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubUserGetter struct {
	record *firebaseauth.UserRecord
	err    error
	calls  int
}

func (s *stubUserGetter) GetUser(_ context.Context, _ string) (*firebaseauth.UserRecord, error) {
	s.calls++
	return s.record, s.err
}

func TestUserLocaleResolverReadsClaim(t *testing.T) {
	getter := &stubUserGetter{record: &firebaseauth.UserRecord{
		CustomClaims: map[string]interface{}{"locale": " id-ID "},
	}}
	resolve := UserLocaleResolver(getter)

	locale, err := resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if locale != "id-ID" {
		t.Fatalf("locale = %q, want id-ID", locale)
	}
}

func TestUserLocaleResolverMissingClaim(t *testing.T) {
	getter := &stubUserGetter{record: &firebaseauth.UserRecord{}}
	resolve := UserLocaleResolver(getter)

	locale, err := resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if locale != "" {
		t.Fatalf("locale = %q, want empty", locale)
	}
}

func TestUserLocaleResolverSkipsEmptyUID(t *testing.T) {
	getter := &stubUserGetter{}
	resolve := UserLocaleResolver(getter)

	if _, err := resolve(context.Background(), "  "); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if getter.calls != 0 {
		t.Fatalf("calls = %d, want 0", getter.calls)
	}
}

func TestUserLocaleResolverPropagatesLookupError(t *testing.T) {
	wantErr := errors.New("admin api unavailable")
	getter := &stubUserGetter{err: wantErr}
	resolve := UserLocaleResolver(getter)

	if _, err := resolve(context.Background(), "u1"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
