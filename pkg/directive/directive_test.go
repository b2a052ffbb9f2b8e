package directive

import (
	"net/http"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Directive
	}{
		{
			name:  "empty",
			value: "",
			want:  Directive{},
		},
		{
			name:  "purge only",
			value: "purgeall",
			want:  Directive{Purge: true},
		},
		{
			name:  "cache with cookies",
			value: "cache,bypass-cookies=wp-|wordpress|comment_|woocommerce_",
			want: Directive{
				Cache:         true,
				BypassCookies: []string{"wp-", "wordpress", "comment_", "woocommerce_"},
			},
		},
		{
			name:  "whitespace tolerated",
			value: " cache , purgeall ",
			want:  Directive{Purge: true, Cache: true},
		},
		{
			name:  "unknown tokens ignored",
			value: "nocache,something-else",
			want:  Directive{},
		},
		{
			name:  "empty bypass list",
			value: "cache,bypass-cookies=",
			want:  Directive{Cache: true},
		},
		{
			name:  "bypass token without list",
			value: "bypass-cookies",
			want:  Directive{},
		},
		{
			name:  "prefixed lookalike ignored",
			value: "bypass-cookiesx=a",
			want:  Directive{},
		},
		{
			name:  "empty list entries dropped",
			value: "bypass-cookies=a||b|",
			want:  Directive{BypassCookies: []string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		value       string
		wantPresent bool
		wantCache   bool
	}{
		{name: "absent", wantPresent: false},
		{name: "empty value", key: HeaderName, value: "", wantPresent: false},
		{name: "present without cache", key: HeaderName, value: "nocache", wantPresent: true, wantCache: false},
		{name: "present with cache", key: HeaderName, value: "cache", wantPresent: true, wantCache: true},
		{name: "lower-case key", key: "x-html-edge-cache", value: "purgeall,cache", wantPresent: true, wantCache: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.key != "" {
				h.Set(tt.key, tt.value)
			}

			d, present := FromHeader(h)
			if present != tt.wantPresent {
				t.Errorf("present = %v, want %v", present, tt.wantPresent)
			}
			if d.Cache != tt.wantCache {
				t.Errorf("Cache = %v, want %v", d.Cache, tt.wantCache)
			}
		})
	}
}

func TestDirective_String(t *testing.T) {
	d := Directive{Purge: true, Cache: true, BypassCookies: []string{"wp-", "comment_"}}
	want := "purgeall,cache,bypass-cookies=wp-|comment_"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Parse(d.String()); !reflect.DeepEqual(got, d) {
		t.Errorf("Parse(String()) = %+v, want %+v", got, d)
	}
}
