package story

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Word bounds given to the model.
const (
	MinWords = 350
	MaxWords = 450
)

const excerptRunes = 200

var templates = template.Must(template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"))

var stageTemplates = map[Stage]string{
	StageInitial:   "initial.tmpl",
	StageDeepening: "deepening.tmpl",
	StageSurreal:   "surreal.tmpl",
	StageMythic:    "mythic.tmpl",
}

// PromptInput is everything the stage prompts can reference.
type PromptInput struct {
	Name        string
	Location    string
	EnergyWord  domain.EnergyWord
	Category    domain.DesireCategory
	Description string
	LovedOne    string
	Sequence    int
	PriorThemes []string
}

type promptData struct {
	Name        string
	Location    string
	EnergyWord  domain.EnergyWord
	Category    domain.DesireCategory
	Description string
	Excerpt     string
	LovedOne    string
	HasLovedOne bool
	Sequence    int
	PriorThemes string
}

// SystemPrompt returns the persona, output format, and length rule.
func SystemPrompt() (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "system.tmpl", struct{ MinWords, MaxWords int }{MinWords, MaxWords})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// UserPrompt renders the stage prompt for in.
func UserPrompt(stage Stage, in PromptInput) (string, error) {
	name, ok := stageTemplates[stage]
	if !ok {
		return "", fmt.Errorf("no prompt for stage %q", stage)
	}

	lovedOne := strings.TrimSpace(in.LovedOne)
	data := promptData{
		Name:        in.Name,
		Location:    in.Location,
		EnergyWord:  in.EnergyWord,
		Category:    in.Category,
		Description: in.Description,
		Excerpt:     excerpt(in.Description, excerptRunes),
		LovedOne:    lovedOne,
		HasLovedOne: lovedOne != "",
		Sequence:    in.Sequence,
		PriorThemes: joinThemes(in.PriorThemes, emptyThemesText(stage)),
	}
	if !data.HasLovedOne {
		data.LovedOne = "Not provided"
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", stage, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func emptyThemesText(stage Stage) string {
	if stage == StageDeepening {
		return "None yet"
	}
	return "None"
}

func joinThemes(themes []string, empty string) string {
	if len(themes) == 0 {
		return empty
	}
	return strings.Join(themes, ", ")
}

// excerpt returns the first n runes of s, marking a cut with "...".
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
