package logging

import "testing"

func TestRedact(t *testing.T) {
	in := map[string]any{
		"holder":   "alice",
		"Email":    "alice@example.com",
		"password": "hunter2",
		"amount":   int64(2_500),
	}
	out := Redact(in)
	if out["holder"] != "alice" || out["amount"] != int64(2_500) {
		t.Fatalf("non-sensitive fields altered: %v", out)
	}
	if out["Email"] != "[REDACTED]" || out["password"] != "[REDACTED]" {
		t.Fatalf("sensitive fields leaked: %v", out)
	}
	if in["Email"] == "[REDACTED]" {
		t.Fatalf("input map mutated")
	}
}

func TestRedactNilAndEmpty(t *testing.T) {
	if out := Redact(nil); out != nil {
		t.Fatalf("Redact(nil) = %v", out)
	}
}

func TestRedactField(t *testing.T) {
	if f := RedactField("token", "abc123"); f.String != "[REDACTED]" {
		t.Fatalf("token field leaked: %q", f.String)
	}
	if f := RedactField("holder", "alice"); f.String != "alice" {
		t.Fatalf("holder field redacted: %q", f.String)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Fatalf("New(verbose) should fail")
	}
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("New(debug): %v", err)
	}
	if logger == nil {
		t.Fatalf("nil logger")
	}
}
