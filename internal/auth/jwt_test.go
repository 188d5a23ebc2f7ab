package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	pair, err := Issue("student-7", RoleStudent, "classtrack", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "secret", "classtrack")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "student-7" || claims.Role != RoleStudent {
		t.Errorf("claims %+v", claims)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	if _, err := Issue("u1", "admin", "classtrack", "secret", time.Minute, time.Hour); err == nil {
		t.Fatal("unknown role must be rejected")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("t1", RoleTeacher, "other", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "classtrack"); err == nil {
		t.Fatal("issuer mismatch must fail")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	pair, err := Issue("t1", RoleTeacher, "classtrack", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken+"x", "secret", "classtrack"); err == nil {
		t.Fatal("tampered token must fail")
	}
}
