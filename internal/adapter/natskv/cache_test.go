package natskv

import (
	"regexp"
	"testing"
)

func TestEncodeKey(t *testing.T) {
	valid := regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

	keys := []string{
		"deposit:status:dep123",
		"deposit:status:a b*c>",
		"deposit:status:ünïcode",
	}
	seen := make(map[string]string)
	for _, k := range keys {
		enc := encodeKey(k)
		if !valid.MatchString(enc) {
			t.Errorf("encodeKey(%q) = %q contains characters outside the KV alphabet", k, enc)
		}
		if prev, dup := seen[enc]; dup {
			t.Errorf("encodeKey collision: %q and %q", prev, k)
		}
		seen[enc] = k
	}
}
