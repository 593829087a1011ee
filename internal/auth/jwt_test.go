package auth

import "testing"

func TestJWT_roundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	token, err := svc.Generate("alice", RoleViewer)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.DisplayName != "alice" || claims.Role != RoleViewer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWT_rejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 1).Generate("alice", RoleViewer)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := NewJWTService("secret-b", 1).Validate(token); err == nil {
		t.Fatal("token signed with another secret validated")
	}
}

func TestJWT_rejectsGarbage(t *testing.T) {
	if _, err := NewJWTService("secret", 1).Validate("not.a.token"); err == nil {
		t.Fatal("garbage token validated")
	}
}
