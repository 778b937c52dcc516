package apperr

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", New(NotFound, "missing"), NotFound},
		{"wrapped", Wrap(Conflict, errors.New("boom"), "conflict"), Conflict},
		{"plain", errors.New("oops"), Internal},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorDetails(t *testing.T) {
	err := New(InvalidArgument, "bad path").WithDetail("path", "/tmp/x")
	if err.Details()["path"] != "/tmp/x" {
		t.Errorf("details not set")
	}
	if err.Error() != "bad path" {
		t.Errorf("Error() = %q", err.Error())
	}
}
