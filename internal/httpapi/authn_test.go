package httpapi

import (
	"errors"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		err    error
	}{
		{"Bearer abc.def", "abc.def", nil},
		{"bearer   abc.def  ", "abc.def", nil},
		{"", "", errMissingBearer},
		{"Bearer ", "", errMissingBearer},
		{"Basic dXNlcjpwYXNz", "", errBadScheme},
		{"abc.def", "", errBadScheme},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if token != tc.token || !errors.Is(err, tc.err) {
			t.Fatalf("extractBearerToken(%q) = %q, %v; want %q, %v", tc.header, token, err, tc.token, tc.err)
		}
	}
}
