package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"tagged", New(CodeInsufficientBalance, "no funds"), CodeInsufficientBalance},
		{"wrapped", fmt.Errorf("outer: %w", New(CodeNotFound, "missing")), CodeNotFound},
		{"untagged", errors.New("plain"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeInternal, "ping database", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its cause")
	}
	if !IsCode(err, CodeInternal) {
		t.Fatalf("wrapped error lost its code")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(CodeLockTimeout, "row locked")
	outer := fmt.Errorf("transfer: %w", inner)
	if !IsCode(outer, CodeLockTimeout) {
		t.Fatalf("IsCode should see through fmt wrapping")
	}
	if IsCode(outer, CodeConflict) {
		t.Fatalf("IsCode matched the wrong code")
	}
}

func TestErrorString(t *testing.T) {
	err := Newf(CodeConflict, "reference %q already used", "ref-1")
	want := `CONFLICT: reference "ref-1" already used`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
