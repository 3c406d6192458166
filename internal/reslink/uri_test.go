package reslink

import (
	"testing"

	"github.com/rakunlabs/splot/internal/splotval"
)

func TestParsePropertyURI(t *testing.T) {
	p, err := Parse("loop://local/lamp-1/s/onof/v?d=2.5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.ThingID != "lamp-1" || p.Section != splotval.SectionState || p.Trait != "onof" || p.Short != "v" {
		t.Fatalf("unexpected parse result: %+v", p)
	}
	if !p.Mods.HasDuration || p.Mods.Duration.Seconds() != 2.5 {
		t.Fatalf("expected duration modifier, got %+v", p.Mods)
	}
	if !p.Local() {
		t.Fatalf("expected loop scheme to be local")
	}
}

func TestParseMethodURI(t *testing.T) {
	p, err := Parse("loop://local/scene-host/f/scn?save")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !p.IsMethod || p.Trait != "scn" || p.Short != "save" {
		t.Fatalf("unexpected method parse: %+v", p)
	}
}

func TestParseGroupURI(t *testing.T) {
	p, err := Parse("loop://local/g/living-room/s/onof/v")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.GroupID != "living-room" || p.ThingID != "" {
		t.Fatalf("unexpected group parse: %+v", p)
	}
}

func TestParseBareAbsolutePath(t *testing.T) {
	p, err := Parse("/lamp-1/c/onof/v")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !p.Local() || p.ThingID != "lamp-1" || p.Section != splotval.SectionConfig {
		t.Fatalf("unexpected bare-path parse: %+v", p)
	}
}

func TestParseRemoteURI(t *testing.T) {
	p, err := Parse("https://hub.example/lamp-1/s/onof/v")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Local() {
		t.Fatalf("expected https scheme to not be local")
	}
}

func TestParseRejectsUnknownSection(t *testing.T) {
	if _, err := Parse("loop://local/lamp-1/x/onof/v"); err == nil {
		t.Fatalf("expected error for unknown section letter")
	}
}
