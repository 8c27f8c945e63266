package cdse

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"tagged auth", newError(ErrorAuth, "op", errors.New("rejected")), ErrorAuth},
		{"tagged wrapped", fmt.Errorf("outer: %w", errorf(ErrorNotFound, "op", "gone")), ErrorNotFound},
		{"untagged transport", errors.New("dial tcp 1.2.3.4:443: connection refused"), ErrorNetwork},
		{"untagged local io", &fs.PathError{Op: "open", Path: "/tmp/x", Err: errors.New("permission denied")}, ErrorFilesystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKindHelpers(t *testing.T) {
	authErr := newError(ErrorAuth, "token exchange", errors.New("401"))
	if !IsAuth(authErr) {
		t.Error("IsAuth() = false for an auth-tagged error")
	}
	if IsNetwork(authErr) {
		t.Error("IsNetwork() = true for an auth-tagged error")
	}
	if IsAuth(nil) {
		t.Error("IsAuth(nil) = true")
	}

	// Untagged transport failures still count as network so wrapped
	// net-layer errors pick the retry path.
	if !IsNetwork(errors.New("read tcp: i/o timeout")) {
		t.Error("IsNetwork() = false for an untagged transport error")
	}
}

func TestErrorMessageCarriesOp(t *testing.T) {
	err := errorf(ErrorValidation, "geometry", "longitude out of range")
	want := "geometry: longitude out of range"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
