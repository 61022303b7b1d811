package core

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindInternal},
		{"classified", NewError(KindPermissionDenied, "no"), KindPermissionDenied},
		{"wrapped", pkgerrors.Wrap(NewError(KindConfigurationFault, "missing table"), "scanning"), KindConfigurationFault},
		{"validation", NewValidationError(errors.New("bad")), KindInvalidArgument},
		{"outermost wins", NewError(KindInternal, "deleting", NewError(KindProfileMissing, "gone")), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q; want %q", got, tt.want)
			}
		})
	}

	if !IsInternal(NewError(KindConfigurationFault, "")) {
		t.Error("a configuration fault must be internal")
	}
	if IsConfigurationFault(NewError(KindInternal, "")) {
		t.Error("an internal error is not a configuration fault")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unclassified", errors.New("pq: password authentication failed"), "an internal error occurred"},
		{"unauthenticated", NewError(KindUnauthenticated, ""), CredentialsMessage},
		{"unauthenticated with message", NewError(KindUnauthenticated, "user must be logged in"), "user must be logged in"},
		{"permission denied", NewError(KindPermissionDenied, "only admins", errors.New("hidden")), "only admins"},
		{
			"internal strips the backend prefix",
			NewError(KindInternal, "Failed to delete user", errors.New("Firebase: Error (auth/user-not-found).")),
			"Failed to delete user: Error (auth/user-not-found).",
		},
		{
			"rpc status prefix",
			NewError(KindConfigurationFault, "", errors.New("rpc error: code = PermissionDenied desc = Missing or insufficient permissions.")),
			"Missing or insufficient permissions.",
		},
		{"timeout", pkgerrors.Wrap(context.DeadlineExceeded, "fetching profile"), "the request timed out, please try again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := pkgerrors.Wrap(NewError(KindInternal, "step", cause), "op")
	if !errors.Is(err, cause) {
		t.Error("errors.Is() must reach the cause")
	}
	if got, want := err.Error(), "op: step: cause"; got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
}

func TestIsShutdown(t *testing.T) {
	if !IsShutdown(pkgerrors.Wrap(NewShutdownError("integrity"), "handler")) {
		t.Error("IsShutdown() = false for a wrapped shutdown error")
	}
	if IsShutdown(errors.New("boom")) {
		t.Error("IsShutdown() = true for a plain error")
	}
}

func TestCleanString(t *testing.T) {
	if got := CleanString("  Ann Doe \n"); got != "Ann Doe" {
		t.Errorf("CleanString() = %q", got)
	}
	if got := CleanString(" Ann@School.IO ", true); got != "ann@school.io" {
		t.Errorf("CleanString(lower) = %q", got)
	}
}
