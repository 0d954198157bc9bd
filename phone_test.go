package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"already E.164", "+12125550142", "+12125550142"},
		{"national format", "(212) 555-0142", "+12125550142"},
		{"digits only", "2125550142", "+12125550142"},
		{"surrounding whitespace", "  2125550142  ", "+12125550142"},
		{"unparseable input passes through trimmed", " not-a-number ", "not-a-number"},
		{"too short to be valid", "12345", "12345"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, identity.NormalizePhone(tc.input))
		})
	}
}
