package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"l2writer/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "writer", "execute", "flush failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"writer", "execute", "flush failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "writer", "send", "", nil), false},
		{"external tool", services.Wrap(services.ErrExternalTool, "writer", "execute", "", errors.New("disk full")), false},
		{"fatal", services.Wrap(services.ErrFatal, "writer", "lock", "", nil), true},
		{"configuration", fmt.Errorf("outer: %w", services.Wrap(services.ErrConfiguration, "writer", "", "", nil)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsFatal(tc.err); got != tc.want {
				t.Fatalf("IsFatal(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestKindLabelsMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("plain"), "unknown"},
		{services.Wrap(services.ErrValidation, "writer", "process", "no scene", nil), "validation"},
		{services.Wrap(services.ErrFatal, "writer", "lock", "", services.Wrap(services.ErrTimeout, "", "", "", nil)), "fatal"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrExternalTool, "", "", "", nil)), "external"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
