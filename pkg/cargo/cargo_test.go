package cargo

import (
	"testing"

	"github.com/crateherd/crateherd/pkg/errors"
)

func TestParseConfigValue(t *testing.T) {
	got, err := parseConfigValue(
		`registries.internal.index = "https://dl.example.com/cargo/index.git"`,
		"registries.internal.index")
	if err != nil {
		t.Fatalf("parseConfigValue error: %v", err)
	}
	if got != "https://dl.example.com/cargo/index.git" {
		t.Errorf("value = %q", got)
	}
}

func TestParseConfigValueWrongKey(t *testing.T) {
	_, err := parseConfigValue(`something.else = "x"`, "registries.internal.index")
	if errors.GetCode(err) != errors.ErrCodeBadConfigOutput {
		t.Fatalf("err = %v, want BAD_CONFIG_OUTPUT", err)
	}
}

func TestParseConfigValueNotQuoted(t *testing.T) {
	_, err := parseConfigValue(`registries.internal.index = 42`, "registries.internal.index")
	if errors.GetCode(err) != errors.ErrCodeBadConfigOutput {
		t.Fatalf("err = %v, want BAD_CONFIG_OUTPUT", err)
	}
}

func TestParseConfigValueEmpty(t *testing.T) {
	_, err := parseConfigValue("", "registries.internal.index")
	if errors.GetCode(err) != errors.ErrCodeBadConfigOutput {
		t.Fatalf("err = %v, want BAD_CONFIG_OUTPUT", err)
	}
}
