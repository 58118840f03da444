package auth

import (
	"context"
	"net/http"
	"testing"
)

// mockAuthn is a test authenticator with configurable behavior.
type mockAuthn struct {
	result AuthResult
	calls  int
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	m.calls++
	return m.result
}

func yes(subject string) *mockAuthn {
	return &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: subject}}}
}

func no() *mockAuthn { return &mockAuthn{result: AuthResult{Decision: No, Err: ErrUnauthenticated}} }

func abstain() *mockAuthn { return &mockAuthn{result: AuthResult{Decision: Abstain}} }

func TestAuthChain(t *testing.T) {
	tests := []struct {
		name        string
		authns      []Authenticator
		def         AuthDecision
		wantDecide  AuthDecision
		wantSubject string
	}{
		{"first yes stops", []Authenticator{yes("alice"), no()}, No, Yes, "alice"},
		{"first no stops", []Authenticator{no(), yes("bob")}, Yes, No, ""},
		{"abstain then yes", []Authenticator{abstain(), yes("jwt-user")}, No, Yes, "jwt-user"},
		{"all abstain default reject", []Authenticator{abstain(), abstain()}, No, No, ""},
		{"all abstain default accept", []Authenticator{abstain()}, Yes, Yes, AnonymousSubject},
		{"empty chain default reject", nil, No, No, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{Authenticators: tt.authns, DefaultDecision: tt.def}
			r, _ := http.NewRequest("GET", "/", nil)
			result := chain.Authenticate(context.Background(), r)

			if result.Decision != tt.wantDecide {
				t.Fatalf("Decision = %s, want %s", result.Decision, tt.wantDecide)
			}
			if tt.wantDecide == Yes && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if tt.wantDecide == No && result.Err == nil {
				t.Error("expected an error with a No decision")
			}
		})
	}
}

func TestAuthChain_StopsAtDecision(t *testing.T) {
	second := yes("bob")
	chain := &AuthChain{Authenticators: []Authenticator{no(), second}}
	r, _ := http.NewRequest("GET", "/", nil)
	chain.Authenticate(context.Background(), r)

	if second.calls != 0 {
		t.Errorf("second authenticator called %d times after a No", second.calls)
	}
}

func TestIdentity_Tier(t *testing.T) {
	if got := (&Identity{Subject: "a", ServiceTier: "premium"}).Tier(); got != "premium" {
		t.Errorf("Tier = %q, want premium", got)
	}
	if got := (&Identity{Subject: "a"}).Tier(); got != DefaultTier {
		t.Errorf("Tier = %q, want %q", got, DefaultTier)
	}
	var nilID *Identity
	if got := nilID.Tier(); got != DefaultTier {
		t.Errorf("Tier on nil = %q, want %q", got, DefaultTier)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if IdentityFromContext(ctx) != nil {
		t.Error("expected nil identity from empty context")
	}
	if got := UserID(ctx); got != AnonymousSubject {
		t.Errorf("UserID = %q, want %q", got, AnonymousSubject)
	}

	ctx = SetIdentity(ctx, &Identity{Subject: "alice"})
	if got := IdentityFromContext(ctx); got == nil || got.Subject != "alice" {
		t.Errorf("got %v, want alice", got)
	}
	if got := UserID(ctx); got != "alice" {
		t.Errorf("UserID = %q, want alice", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer ", "", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}
