package generate

import (
	"strings"
	"testing"

	logx "tubefarm/pkg/logx"
)

func TestFallbackNeverEmpty(t *testing.T) {
	f := NewFallback(logx.Nop())
	for _, niche := range []string{"Motivational", "Facts & Info", "Finance", "Psychology"} {
		c := f.Generate(niche, "short")
		if c.Topic == "" || c.Script == "" || len(c.Titles) == 0 {
			t.Fatalf("%s: incomplete content: %+v", niche, c)
		}
		if c.Niche != niche || c.Type != "short" || c.GeneratedBy != "fallback" {
			t.Fatalf("%s: metadata wrong: %+v", niche, c)
		}
		if len(c.Hashtags) == 0 {
			t.Fatalf("%s: no hashtags", niche)
		}
		if !strings.Contains(c.Description, c.Script) {
			t.Fatalf("%s: description missing script", niche)
		}
	}
}

func TestFallbackUnknownNicheUsesMotivational(t *testing.T) {
	f := NewFallback(logx.Nop())
	c := f.Generate("Underwater Basket Weaving", "short")
	if c.Script == "" {
		t.Fatalf("unknown niche must still produce content")
	}
	if c.Niche != "Underwater Basket Weaving" {
		t.Fatalf("requested niche must be preserved: %q", c.Niche)
	}
	found := false
	for _, h := range fallbackTemplates["Motivational"].hashtags {
		for _, got := range c.Hashtags {
			if h == got {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected Motivational template material, got %v", c.Hashtags)
	}
}

func TestFallbackDefaultsVideoType(t *testing.T) {
	f := NewFallback(logx.Nop())
	if c := f.Generate("Motivational", ""); c.Type != "short" {
		t.Fatalf("type = %q, want short", c.Type)
	}
}

func TestContentTitle(t *testing.T) {
	c := Content{Titles: []string{"First", "Second"}}
	if c.Title() != "First" {
		t.Fatalf("Title() = %q", c.Title())
	}
	if (Content{}).Title() != "Untitled Video" {
		t.Fatalf("empty content needs the placeholder title")
	}
}

func TestValidateFiltersTitles(t *testing.T) {
	long := strings.Repeat("x", 120)
	c := Content{
		Script: "hello",
		Titles: []string{"", long, "Keep Me"},
	}
	if err := validate(&c); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(c.Titles) != 1 || c.Titles[0] != "Keep Me" {
		t.Fatalf("titles = %v", c.Titles)
	}

	c = Content{Script: "", Titles: []string{"T"}}
	if err := validate(&c); err == nil {
		t.Fatalf("empty script must fail validation")
	}

	c = Content{Script: "hello", Titles: []string{"", long}}
	if err := validate(&c); err == nil {
		t.Fatalf("no usable titles must fail validation")
	}
}
