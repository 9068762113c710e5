package internal

import "testing"

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID: %v", err)
	}
	if parsed != sid {
		t.Fatal("round trip mismatch")
	}
	if len(sid.String()) != 22 {
		t.Fatalf("expected 22 chars, got %d", len(sid.String()))
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewToken(32)
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if seen[tok] {
			t.Fatal("duplicate token")
		}
		seen[tok] = true
	}
	if _, err := NewToken(4); err == nil {
		t.Fatal("expected error for short token")
	}
}

func TestEqualTokens(t *testing.T) {
	if !EqualTokens("abc", "abc") {
		t.Fatal("equal tokens must match")
	}
	if EqualTokens("abc", "abd") || EqualTokens("", "") || EqualTokens("abc", "") {
		t.Fatal("unequal or empty tokens must not match")
	}
}

// FuzzParseSessionID checks arbitrary cookie values never panic and that
// anything accepted re-encodes to itself.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAA")
	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		sid, err := ParseSessionID(input)
		if err != nil {
			return
		}
		if sid.String() != input {
			t.Fatalf("re-encode mismatch: %q -> %q", input, sid.String())
		}
	})
}
