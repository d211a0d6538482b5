// Package prompt holds the system prompts for the two agent roles and
// supports overriding them from a YAML file so operators can tune
// behavior without rebuilding.
package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultPlannerPrompt = `You are a planning assistant for a Jupyter notebook co-editing session.
Given the user's request and the current notebook, produce a short, concrete
plan: which cells to read, edit, insert, or delete, and in what order.
Do not perform any edits yourself. Respond with the plan only.`

const defaultEditorPrompt = `You are a notebook co-editor working alongside the user in a shared
Jupyter notebook. You can read and modify cells through the tools provided.

Rules:
- Cells are addressed by zero-based index. Inserting or deleting shifts the
  indices of later cells; re-read the notebook before further edits after a
  structural change.
- Prefer small, targeted edits over wholesale rewrites.
- After finishing your edits, summarize briefly what you changed.
- If the request is ambiguous, ask instead of guessing.`

// Prompts bundles the system prompts used by the session.
type Prompts struct {
	Planner string `yaml:"planner"`
	Editor  string `yaml:"editor"`
}

// Defaults returns the built-in prompts.
func Defaults() Prompts {
	return Prompts{
		Planner: defaultPlannerPrompt,
		Editor:  defaultEditorPrompt,
	}
}

// Load returns the defaults overlaid with any prompts set in the YAML
// file at path. An empty path means defaults; a missing field keeps
// its default.
func Load(path string) (Prompts, error) {
	p := Defaults()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("reading prompt file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Prompts{}, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}

	if override.Planner != "" {
		p.Planner = override.Planner
	}
	if override.Editor != "" {
		p.Editor = override.Editor
	}
	return p, nil
}
