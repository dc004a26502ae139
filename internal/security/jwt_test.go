package security

import (
	"testing"
	"time"
)

func TestIssueAndParseAccess(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("test-secret", time.Minute, time.Hour)
	tokens, refreshClaims, err := m.Issue(RoleCurator, 100)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("empty tokens")
	}
	if refreshClaims.JTI == "" {
		t.Error("refresh JTI must be set")
	}

	id, role, err := m.ParseAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if id != 100 || role != RoleCurator {
		t.Errorf("parsed id=%d role=%q, want 100/curator", id, role)
	}
}

func TestParseRefreshRoundtrip(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("test-secret", time.Minute, time.Hour)
	tokens, issued, err := m.Issue(RoleDriver, 555)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.ParseRefresh(tokens.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if claims.UserID != 555 || claims.Role != RoleDriver || claims.JTI != issued.JTI {
		t.Errorf("claims = %+v, want user 555, driver, jti %s", claims, issued.JTI)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("secret-a", time.Minute, time.Hour)
	other := NewJWTManager("secret-b", time.Minute, time.Hour)

	tokens, _, err := m.Issue(RoleCurator, 100)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := other.ParseAccess(tokens.AccessToken); err == nil {
		t.Error("access token signed with a different key must be rejected")
	}
	if _, err := other.ParseRefresh(tokens.RefreshToken); err == nil {
		t.Error("refresh token signed with a different key must be rejected")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	t.Parallel()

	m := NewJWTManager("test-secret", -time.Minute, time.Hour)
	tokens, _, err := m.Issue(RoleCurator, 100)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := m.ParseAccess(tokens.AccessToken); err == nil {
		t.Error("expired access token must be rejected")
	}
}
