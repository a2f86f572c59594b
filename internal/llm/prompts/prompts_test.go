package prompts

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pavelanni/mathgenius/internal/model"
)

func mustDefault(t *testing.T) *Set {
	t.Helper()
	s, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return s
}

func TestFragmentsAreTotal(t *testing.T) {
	s := mustDefault(t)

	for _, m := range model.DiagramModes {
		if strings.TrimSpace(s.DiagramFragment(m)) == "" {
			t.Errorf("diagram mode %q has no fragment", m)
		}
	}
	for _, m := range model.SolutionModes {
		if strings.TrimSpace(s.SolutionFragment(m)) == "" {
			t.Errorf("solution mode %q has no fragment", m)
		}
	}

	seen := make(map[string]model.SolutionMode)
	for _, m := range model.SolutionModes {
		frag := s.SolutionFragment(m)
		if other, ok := seen[frag]; ok {
			t.Errorf("solution modes %q and %q share a fragment", m, other)
		}
		seen[frag] = m
	}
}

func TestComposeDeterministic(t *testing.T) {
	s := mustDefault(t)
	base := s.Base(model.ShapeTwoPhase)

	for _, d := range model.DiagramModes {
		for _, sm := range model.SolutionModes {
			opts := model.GenerationOptions{DiagramMode: d, SolutionMode: sm}
			t.Run(string(d)+"/"+string(sm), func(t *testing.T) {
				first := s.Compose(base, opts)
				second := s.Compose(base, opts)
				if first != second {
					t.Fatal("Compose is not deterministic")
				}
				want := base + s.DiagramFragment(d) + s.SolutionFragment(sm)
				if first != want {
					t.Error("Compose should be base + diagram fragment + solution fragment")
				}
			})
		}
	}
}

func TestComposeDistinguishesOptions(t *testing.T) {
	s := mustDefault(t)
	base := s.Base(model.ShapeTwoPhase)

	a := s.Compose(base, model.GenerationOptions{DiagramMode: model.DiagramStandard, SolutionMode: model.SolutionConcise})
	b := s.Compose(base, model.GenerationOptions{DiagramMode: model.DiagramDetailed, SolutionMode: model.SolutionConcise})
	c := s.Compose(base, model.GenerationOptions{DiagramMode: model.DiagramStandard, SolutionMode: model.SolutionVeryDetailed})
	if a == b || a == c || b == c {
		t.Error("different options should compose different instructions")
	}
}

func TestBaseInstructionsNameShapeFields(t *testing.T) {
	s := mustDefault(t)
	for _, shape := range []model.Shape{model.ShapeTwoPhase, model.ShapeTwoVariant} {
		base := s.Base(shape)
		for _, name := range shape.FieldNames() {
			if !strings.Contains(base, `"`+name+`"`) {
				t.Errorf("base instruction for %s should name field %q", shape, name)
			}
		}
		if s.UserInstruction(shape) == "" {
			t.Errorf("missing user instruction for %s", shape)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	fsys := fstest.MapFS{
		"base_two_phase.txt": {Data: []byte("base")},
	}
	if _, err := Load(fsys); err == nil {
		t.Fatal("expected error for incomplete prompt directory")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	fsys := fstest.MapFS{}
	for _, name := range []string{
		"base_two_phase.txt", "user_two_phase.txt", "base_two_variant.txt", "user_two_variant.txt",
		"diagram_standard.txt", "diagram_detailed.txt",
		"solution_concise.txt", "solution_detailed.txt", "solution_very_detailed.txt",
	} {
		fsys[name] = &fstest.MapFile{Data: []byte(name)}
	}
	if _, err := Load(fsys); err != nil {
		t.Fatalf("Load complete dir: %v", err)
	}

	fsys["solution_concise.txt"] = &fstest.MapFile{Data: []byte("  \n")}
	if _, err := Load(fsys); err == nil {
		t.Fatal("expected error for empty fragment")
	}
}

func TestIsValidModes(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"diagram standard", IsValidDiagramMode, "standard", true},
		{"diagram detailed", IsValidDiagramMode, "detailed", true},
		{"diagram bogus", IsValidDiagramMode, "fancy", false},
		{"solution very_detailed", IsValidSolutionMode, "very_detailed", true},
		{"solution empty", IsValidSolutionMode, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
