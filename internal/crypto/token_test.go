package crypto

import "testing"

func TestNewTokenIsUniqueAndValid(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		if err != nil {
			t.Fatal(err)
		}
		if err := ValidateToken(tok); err != nil {
			t.Fatalf("generated token failed validation: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = struct{}{}
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	tok, err := NewToken()
	if err != nil {
		t.Fatal(err)
	}
	if HashToken(tok) != HashToken(tok) {
		t.Fatal("hash not deterministic")
	}
	other, _ := NewToken()
	if HashToken(tok) == HashToken(other) {
		t.Fatal("distinct tokens hashed identically")
	}
	if HashToken(tok) == tok {
		t.Fatal("hash must not equal the token")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	for _, tok := range []string{
		"",
		"short",
		"contains spaces contains spaces contains spaces ok",
		"has/slashes/which/standard/base64url/never/emits!!",
	} {
		if err := ValidateToken(tok); err == nil {
			t.Fatalf("expected rejection for %q", tok)
		}
	}
}
