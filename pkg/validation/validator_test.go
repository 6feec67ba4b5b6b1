package validation

import "testing"

type hexKeyFixture struct {
	Key string `validate:"required,hex_key"`
}

func TestHexKeyRule(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(&hexKeyFixture{Key: "0123456789abcdef"}); err != nil {
		t.Errorf("expected valid hex key to pass, got %v", err)
	}

	for _, bad := range []string{"", "not-hex", "zz", "0x1234"} {
		if err := v.Validate(&hexKeyFixture{Key: bad}); err == nil {
			t.Errorf("expected %q to fail hex_key validation", bad)
		}
	}
}
