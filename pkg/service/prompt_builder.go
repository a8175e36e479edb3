package service

import (
	"fmt"
	"strings"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/db"
)

// defaultPersona is Sol's voice when config carries no override.
const defaultPersona = `You are Sol, a gentle wellbeing companion who talks with one person across many sessions.
How you speak:
- Warm, plain language; two to four short sentences per reply.
- Acknowledge feelings before offering anything practical.
- Ask at most one question at a time, and only when it helps.
- Never diagnose, prescribe or moralize. If the user sounds in danger, gently point them to local emergency services or a crisis line.`

// markerPersonaAddendum teaches the model the inline tool syntax. Only used
// when the marker routing strategy is configured.
const markerPersonaAddendum = `When the conversation calls for it you may put a tool on the user's screen by embedding a marker in your reply, like:
<tool kind="checklist" theme="packing for the move" />
Valid kinds are checklist, mood_tracker, breathing_exercise and affirmation_card; theme is optional. Markers are stripped before the user sees your reply, so never mention them or the tools' inner workings; just write naturally around them.`

const replyInstruction = `Continue the conversation as Sol, reacting to the most recent turn. Write the reply text only.`

// fallbackReply stands in for the model when generation fails mid-turn.
const fallbackReply = "I'm having trouble finding my words right now. Give me a moment and ask me again?"

// PromptBuilder assembles the single reply prompt for a turn: persona, tool
// state, remembered facts, optional search context, history, and at most one
// system note describing what just happened outside the chat.
type PromptBuilder struct {
	cfg *config.AppConfig
}

func NewPromptBuilder(cfg *config.AppConfig) *PromptBuilder {
	return &PromptBuilder{cfg: cfg}
}

// BuildReply renders the full generation prompt for the given conversation.
// systemNote and searchContext may be empty; each appears at most once.
func (b *PromptBuilder) BuildReply(conv *db.Conversation, memories []string, systemNote, searchContext string) string {
	var sb strings.Builder

	persona := defaultPersona
	if b.cfg != nil && b.cfg.Persona() != "" {
		persona = b.cfg.Persona()
	}
	sb.WriteString(persona)
	if b.cfg != nil && b.cfg.RouterMode() == config.RouterModeMarker {
		sb.WriteString("\n\n")
		sb.WriteString(markerPersonaAddendum)
	}

	if conv != nil && len(conv.Tools) > 0 {
		sb.WriteString("\n\nOn the user's screen right now:\n")
		sb.WriteString(summarizeToolState(conv.Tools))
	}

	if len(memories) > 0 {
		sb.WriteString("\n\nThings you remember about the user:\n")
		for _, m := range memories {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}

	if searchContext != "" {
		sb.WriteString("\nBackground you just looked up:\n")
		sb.WriteString(searchContext)
		sb.WriteString("\n")
	}

	if conv != nil && len(conv.History) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, msg := range conv.History {
			sb.WriteString(renderHistoryLine(msg))
			sb.WriteString("\n")
		}
	}

	if systemNote != "" {
		fmt.Fprintf(&sb, "\nSystem note: %s\n", systemNote)
	}

	sb.WriteString("\n")
	sb.WriteString(replyInstruction)
	sb.WriteString("\nSol:")
	return sb.String()
}

// renderHistoryLine flattens one message for the prompt. Tool cards collapse
// to a bracketed placeholder so payload internals never leak into context.
func renderHistoryLine(msg db.Message) string {
	speaker := "User"
	if msg.Role == db.RoleAgent {
		speaker = "Sol"
	}
	if msg.Tool != nil {
		return fmt.Sprintf("%s: [displayed a %s tool]", speaker, humanToolKind(msg.Tool.Kind))
	}
	return fmt.Sprintf("%s: %s", speaker, msg.Content)
}

// toolStateOrder fixes the serialization order so prompts are deterministic.
var toolStateOrder = []db.ToolKind{
	db.ToolKindChecklist,
	db.ToolKindMoodTracker,
	db.ToolKindBreathingExercise,
	db.ToolKindAffirmationCard,
}

// summarizeToolState renders every live tool instance as one line the model
// can reason about.
func summarizeToolState(tools db.ToolSet) string {
	var sb strings.Builder
	for _, kind := range toolStateOrder {
		for _, inst := range tools[kind] {
			sb.WriteString(summarizeToolInstance(inst))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func summarizeToolInstance(inst *db.ToolInstance) string {
	switch p := inst.Payload.(type) {
	case *db.ChecklistPayload:
		items := make([]string, len(p.Items))
		for i, item := range p.Items {
			items[i] = item.Text
		}
		return fmt.Sprintf("- Checklist %q, open items: %s", inst.Title, strings.Join(items, "; "))
	case *db.MoodTrackerPayload:
		if len(p.Log) == 0 {
			return fmt.Sprintf("- Mood tracker %q, nothing logged yet", inst.Title)
		}
		last := p.Log[len(p.Log)-1]
		return fmt.Sprintf("- Mood tracker %q, %d entries, latest mood %q", inst.Title, len(p.Log), last.Mood)
	case *db.BreathingPayload:
		return fmt.Sprintf("- Breathing exercise %q: inhale %ds, hold %ds, exhale %ds", inst.Title, p.Inhale, p.Hold, p.Exhale)
	case *db.AffirmationPayload:
		return fmt.Sprintf("- Affirmation card %q with %d affirmations", inst.Title, len(p.Affirmations))
	default:
		return fmt.Sprintf("- %s %q", humanToolKind(inst.Kind()), inst.Title)
	}
}
