package security

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("20052026OPHLNM12")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword(hash, "20052026OPHLNM12") {
		t.Fatal("expected matching password to verify")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"  ZaidDeaa@University.EDU  ", "zaiddeaa@university.edu", true},
		{"plain-string", "", false},
		{"@nouser.edu", "", false},
		{"trailing@", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := SanitizeEmail(tc.raw)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("SanitizeEmail(%q)=(%q,%v) want (%q,%v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	mgr := NewTokenManager("portal-access", "portal", "test-secret")
	raw, err := mgr.SignSessionToken("rep_zaid_deaa", "Zaid Deaa", 3600e9)
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	claims, err := mgr.ParseSessionToken(raw)
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}
	if claims.Subject != "rep_zaid_deaa" || claims.RepName != "Zaid Deaa" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	anon, err := mgr.SignAnonymousToken(3600e9)
	if err != nil {
		t.Fatalf("sign anonymous token: %v", err)
	}
	if _, err := mgr.ParseSessionToken(anon); err == nil {
		t.Fatal("anonymous token must not parse as a session token")
	}
}
