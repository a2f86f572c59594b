package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/pavelanni/mathgenius/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Set holds the base instructions and the option-dependent fragments.
type Set struct {
	base     map[model.Shape]string
	user     map[model.Shape]string
	diagram  map[model.DiagramMode]string
	solution map[model.SolutionMode]string
}

var (
	loadOnce   sync.Once
	loadErr    error
	defaultSet *Set
)

// IsValidDiagramMode checks if a diagram mode name is valid.
func IsValidDiagramMode(v string) bool {
	return model.DiagramMode(v).Valid()
}

// IsValidSolutionMode checks if a solution mode name is valid.
func IsValidSolutionMode(v string) bool {
	return model.SolutionMode(v).Valid()
}

// Default returns the prompt set compiled into the binary.
// It uses sync.Once to ensure templates are loaded only once.
func Default() (*Set, error) {
	loadOnce.Do(func() {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			loadErr = err
			return
		}
		defaultSet, loadErr = Load(sub)
	})
	return defaultSet, loadErr
}

// Load reads every prompt file from fsys. All files are required and must be non-empty.
//
// Layout:
//
//	base_<shape>.txt, user_<shape>.txt, diagram_<mode>.txt, solution_<mode>.txt
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{
		base:     make(map[model.Shape]string),
		user:     make(map[model.Shape]string),
		diagram:  make(map[model.DiagramMode]string),
		solution: make(map[model.SolutionMode]string),
	}

	for _, shape := range []model.Shape{model.ShapeTwoPhase, model.ShapeTwoVariant} {
		base, err := readPrompt(fsys, "base_"+string(shape)+".txt")
		if err != nil {
			return nil, err
		}
		s.base[shape] = base
		user, err := readPrompt(fsys, "user_"+string(shape)+".txt")
		if err != nil {
			return nil, err
		}
		s.user[shape] = user
	}

	for _, m := range model.DiagramModes {
		frag, err := readPrompt(fsys, "diagram_"+string(m)+".txt")
		if err != nil {
			return nil, err
		}
		s.diagram[m] = "\n\n" + frag
	}
	for _, m := range model.SolutionModes {
		frag, err := readPrompt(fsys, "solution_"+string(m)+".txt")
		if err != nil {
			return nil, err
		}
		s.solution[m] = "\n\n" + frag
	}

	return s, nil
}

func readPrompt(fsys fs.FS, name string) (string, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", fmt.Errorf("read prompt file %s: %w", name, err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", errors.New("prompt file " + name + " is empty")
	}
	return text, nil
}

// Base returns the base instruction for a shape.
func (s *Set) Base(shape model.Shape) string {
	return s.base[shape]
}

// UserInstruction returns the fixed user turn sent next to the document.
func (s *Set) UserInstruction(shape model.Shape) string {
	return s.user[shape]
}

// DiagramFragment returns the fragment for a diagram mode.
func (s *Set) DiagramFragment(m model.DiagramMode) string {
	return s.diagram[m]
}

// SolutionFragment returns the fragment for a solution mode.
func (s *Set) SolutionFragment(m model.SolutionMode) string {
	return s.solution[m]
}

// Compose appends the option fragments to base. It does no I/O.
func (s *Set) Compose(base string, opts model.GenerationOptions) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString(s.DiagramFragment(opts.DiagramMode))
	sb.WriteString(s.SolutionFragment(opts.SolutionMode))
	return sb.String()
}

// SystemInstruction composes the full system instruction for a shape.
func (s *Set) SystemInstruction(shape model.Shape, opts model.GenerationOptions) string {
	return s.Compose(s.Base(shape), opts)
}
