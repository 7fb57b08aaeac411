package gitprobe

import (
	"errors"
	"testing"

	"devagent/internal/execx"
)

func TestClassifyStderr(t *testing.T) {
	cases := []struct {
		name   string
		stderr string
		want   ActionErrorKind
	}{
		{"non-fast-forward", "! [rejected]        main -> main (non-fast-forward)", NonFastForward},
		{"fetch first", "hint: Updates were rejected because the remote contains work that you do\nhint: not have locally. ... (fetch first)", NonFastForward},
		{"conflict", "CONFLICT (content): Merge conflict in README.md\nAutomatic merge failed; fix conflicts and then commit the result.", Conflict},
		{"uncommitted changes", "error: Your local changes to the following files would be overwritten by merge", UncommittedChanges},
		{"network", "fatal: unable to access 'https://example.com/repo.git/': Could not resolve host: example.com", Network},
		{"unknown", "fatal: something totally unexpected happened", Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyStderr(tc.stderr); got != tc.want {
				t.Errorf("classifyStderr(%q) = %v, want %v", tc.stderr, got, tc.want)
			}
		})
	}
}

func TestClassifyActionError_WrapsNonZeroExit(t *testing.T) {
	nz := &execx.NonZeroExitError{Argv: []string{"git", "push"}, ExitCode: 1, Stderr: "! [rejected] (non-fast-forward)"}
	err := classifyActionError("push", nz)

	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("classifyActionError() = %v, want *ActionError", err)
	}
	if ae.Kind != NonFastForward {
		t.Errorf("Kind = %v, want NonFastForward", ae.Kind)
	}
	if ae.Op != "push" {
		t.Errorf("Op = %q, want push", ae.Op)
	}
	if !errors.Is(ae.Unwrap(), nz) {
		t.Errorf("Unwrap() does not return the underlying NonZeroExitError")
	}
}

func TestClassifyActionError_PassesThroughNonExitErrors(t *testing.T) {
	plain := errors.New("context deadline exceeded")
	if got := classifyActionError("pull", plain); got != plain {
		t.Errorf("classifyActionError() = %v, want unwrapped %v", got, plain)
	}
}

func TestClassifyActionError_NilIsNil(t *testing.T) {
	if got := classifyActionError("pull", nil); got != nil {
		t.Errorf("classifyActionError(nil) = %v, want nil", got)
	}
}
