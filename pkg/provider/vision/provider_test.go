package vision

import (
	"errors"
	"strings"
	"testing"
)

func TestNavigationPrompt(t *testing.T) {
	t.Parallel()

	p := DefaultPrompts()
	got := p.NavigationPrompt("Turn left onto Main Street")
	if !strings.Contains(got, `"Turn left onto Main Street"`) {
		t.Errorf("instruction not substituted: %q", got)
	}
	if strings.Contains(got, "{instruction}") {
		t.Error("placeholder left in prompt")
	}
}

func TestPromptsWithDefaults(t *testing.T) {
	t.Parallel()

	p := Prompts{Explore: "custom"}.WithDefaults()
	if p.Explore != "custom" {
		t.Errorf("Explore = %q, want custom", p.Explore)
	}
	if p.System == "" || p.Navigation == "" {
		t.Error("defaults not applied")
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	if _, err := CleanText("  \n "); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
	got, err := CleanText("  A bench is on your left.\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A bench is on your left." {
		t.Errorf("got %q", got)
	}
}
