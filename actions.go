package margin

import (
	"context"
	"fmt"
	"strings"
)

// Action is a one-shot writing operation applied to a selection or to a
// whole document.
type Action string

// Selection actions rewrite the text the user selected.
const (
	ActionFillIn    Action = "fill-in"
	ActionFix       Action = "fix"
	ActionRewrite   Action = "rewrite"
	ActionExpound   Action = "expound"
	ActionExtend    Action = "extend"
	ActionSummarize Action = "summarize"
)

// General actions work on the whole document.
const (
	ActionItems         Action = "action_items"
	ActionGenerateTitle Action = "generate_title"
	ActionKeyThemes     Action = "key_themes"
)

// SelectionActions lists the actions offered for a selection, in menu order.
var SelectionActions = []Action{
	ActionFillIn, ActionFix, ActionRewrite, ActionExpound, ActionExtend, ActionSummarize,
}

// GeneralActions lists the actions offered for a whole document, in menu
// order.
var GeneralActions = []Action{
	ActionSummarize, ActionItems, ActionGenerateTitle, ActionKeyThemes,
}

const (
	// VariationSeparator splits the alternatives in an action reply.
	VariationSeparator = "---"

	actionSystemPrompt = "You are a helpful writing assistant. Provide exactly 3 variations of the response, separated by '---' (three dashes)."
	actionTemperature  = 0.7
	actionMaxTokens    = 2000
)

var actionLabels = map[Action]string{
	ActionFillIn:        "Fill In",
	ActionFix:           "Fix",
	ActionRewrite:       "Rewrite",
	ActionExpound:       "Expound",
	ActionExtend:        "Extend",
	ActionSummarize:     "Summarize",
	ActionItems:         "Extract Action Items",
	ActionGenerateTitle: "Generate Title",
	ActionKeyThemes:     "Identify Key Themes",
}

var actionInstructions = map[Action]string{
	ActionFillIn: "Within the provided text, there are instances of -- where information is missing. " +
		"Please fill in these gaps based on the surrounding context and return the full text. " +
		"Do not change any other part of the text except to fill in the missing information and return the completed text.",
	ActionFix: "The provided text may contain grammatical or punctuation errors. " +
		"Please correct these errors while preserving the original meaning and style as much as possible. " +
		"Return the corrected text, do not change anything else.",
	ActionRewrite: "Rewrite the provided text to improve its clarity, flow, and overall quality while preserving the original meaning. " +
		"Focus on enhancing readability and coherence without altering the core message. " +
		"Return the rewritten text, do not change anything else.",
	ActionExpound: "Expound upon the provided text by adding more detail, examples, or explanations to enhance understanding. " +
		"Expand on the ideas presented while maintaining the original intent and meaning. " +
		"Return the expanded text, do not change anything else.",
	ActionExtend: "Extend the provided text by adding new content that logically follows from the existing text. " +
		"Build upon the ideas presented to create a longer piece of writing while maintaining coherence and relevance. " +
		"Return the extended text, do not change anything else.",
	ActionSummarize: "Summarize the provided text by condensing it into a shorter version that captures the main points and essential information. " +
		"Focus on conveying the core message while omitting unnecessary details. " +
		"Return the summarized text, do not change anything else.",
}

// ParseAction validates name against the known actions.
func ParseAction(name string) (Action, error) {
	a := Action(strings.TrimSpace(name))
	if _, ok := actionLabels[a]; !ok {
		return "", fmt.Errorf("unknown action %q: %w", name, ErrValidation)
	}
	return a, nil
}

// Label returns the menu label of the action.
func (a Action) Label() string {
	if l, ok := actionLabels[a]; ok {
		return l
	}
	return string(a)
}

// ForSelection reports whether the action applies to a selection.
func (a Action) ForSelection() bool { return contains(SelectionActions, a) }

// ForDocument reports whether the action applies to a whole document.
func (a Action) ForDocument() bool { return contains(GeneralActions, a) }

// TakesInstructions reports whether the user is asked for extra
// instructions before the action runs. Mechanical corrections are not.
func (a Action) TakesInstructions() bool {
	return a != ActionFix && a != ActionFillIn
}

func contains(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// ActionPrompt renders the user message for running action on text.
// Actions without dedicated instructions ask for the action by name.
func ActionPrompt(action Action, text, instructions string) string {
	base, ok := actionInstructions[action]
	if !ok {
		base = fmt.Sprintf("Perform the following action on the provided text: %s. "+
			"Return the modified text, do not change anything else.", action)
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nContext:\n")
	b.WriteString(text)
	if s := strings.TrimSpace(instructions); s != "" {
		b.WriteString("\n\nAdditional Instructions: ")
		b.WriteString(s)
	}
	return b.String()
}

// SplitVariations splits an action reply on VariationSeparator, dropping
// blank parts.
func SplitVariations(reply string) []string {
	var out []string
	for _, part := range strings.Split(reply, VariationSeparator) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Actor runs writing actions with one completion call each. Nothing is
// recorded in the session store.
type Actor struct {
	completer Completer
	settings  Settings
}

// NewActor creates an Actor calling completer with settings.
func NewActor(completer Completer, settings Settings) *Actor {
	return &Actor{completer: completer, settings: settings}
}

// Run asks for variations of action applied to text. Failures wrap
// ErrNotConfigured, ErrValidation, ErrTransport or ErrEmptyResponse.
func (a *Actor) Run(ctx context.Context, action Action, text, instructions string) ([]string, error) {
	if a.settings.APIKey == "" && !a.settings.Keyless {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: no text to work on: %w", action, ErrValidation)
	}
	model := a.settings.Model
	if model == "" {
		model = DefaultModel
	}
	resp, err := a.completer.Complete(ctx, CompletionRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: actionSystemPrompt},
			{Role: RoleUser, Content: ActionPrompt(action, text, instructions)},
		},
		Temperature: actionTemperature,
		MaxTokens:   actionMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if resp.Outcome != OutcomeContent {
		return nil, fmt.Errorf("%s: %w", action, ErrEmptyResponse)
	}
	variations := SplitVariations(resp.Content)
	if len(variations) == 0 {
		return nil, fmt.Errorf("%s: %w", action, ErrEmptyResponse)
	}
	return variations, nil
}
