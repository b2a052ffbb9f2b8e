package origin

import (
	"errors"
	"strings"
	"testing"
)

func TestOriginError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *OriginError
		want string
	}{
		{
			name: "without wrapped error",
			err:  &OriginError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Service Unavailable"},
			want: "origin server error (status 503): 503 Service Unavailable",
		},
		{
			name: "with wrapped error",
			err:  &OriginError{ErrorClass: ErrorClassNetwork, Message: "origin unreachable", Err: errors.New("dial tcp: refused")},
			want: "origin network error (status 0): origin unreachable: dial tcp: refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOriginError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := &OriginError{ErrorClass: ErrorClassNetwork, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
	if !strings.Contains(err.Error(), "network") {
		t.Error("Error() should mention the class")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{301, ""},
		{404, ErrorClassClient},
		{500, ErrorClassServer},
		{520, ErrorClassServer},
	}
	for _, tt := range tests {
		if got := classify(tt.status); got != tt.want {
			t.Errorf("classify(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}
