package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/utils"
)

// DirectiveKind names one routed action for the current turn.
type DirectiveKind string

const (
	DirectiveChat               DirectiveKind = "chat"
	DirectiveSearch             DirectiveKind = "search"
	DirectiveCreateChecklist    DirectiveKind = "create_checklist"
	DirectiveAddChecklistItem   DirectiveKind = "add_checklist_item"
	DirectiveMoreChecklistItems DirectiveKind = "more_checklist_items"
	DirectiveCreateBreathing    DirectiveKind = "create_breathing_exercise"
	DirectiveCreateMoodTracker  DirectiveKind = "create_mood_tracker"
	DirectiveCreateAffirmation  DirectiveKind = "create_affirmation_card"
)

// Directive is one action the router decided on. Arg carries the search
// query, checklist topic, item text or affirmation theme when the kind
// takes one.
type Directive struct {
	Kind DirectiveKind
	Arg  string
}

// distressPhrases trigger the breathing exercise before any model call, so a
// panicking user is never at the mercy of a slow or flaky decision prompt.
var distressPhrases = []string{
	"can't breathe",
	"cant breathe",
	"cannot breathe",
	"panic",
	"hyperventilat",
	"anxiety attack",
	"heart is racing",
	"heart racing",
}

// AgentRouter maps a free-text user message to directives. One decision
// prompt per turn; anything unparseable degrades to plain chat.
type AgentRouter struct {
	generator     Generator
	searchEnabled bool
	logger        *slog.Logger
}

func NewAgentRouter(generator Generator, searchEnabled bool) *AgentRouter {
	return &AgentRouter{
		generator:     generator,
		searchEnabled: searchEnabled,
		logger:        utils.GetLogger(),
	}
}

// Decide routes the utterance. The returned slice is never empty: when
// nothing else applies (or the decision call fails) it holds a single chat
// directive.
func (r *AgentRouter) Decide(ctx context.Context, utterance string, history []db.Message) []Directive {
	if isDistressUtterance(utterance) {
		return []Directive{{Kind: DirectiveCreateBreathing}}
	}

	reply, err := r.generator.Generate(ctx, r.decisionPrompt(utterance, history))
	if err != nil {
		r.logger.Warn("Routing decision failed; falling back to chat", "error", err)
		return []Directive{{Kind: DirectiveChat}}
	}

	directives := r.parseDirectives(reply)
	if len(directives) == 0 {
		return []Directive{{Kind: DirectiveChat}}
	}
	return directives
}

func isDistressUtterance(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, phrase := range distressPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

const decisionRules = `Apply these rules in order; the first match wins unless the message clearly asks for several things at once:
1. The user is in acute distress (panicking, spiralling, struggling to breathe) -> BREATHING
2. The user states one specific actionable item to put on their list -> ADD_ITEM: the item text
3. The user asks for more items, more steps or "what else" for their existing checklist -> MORE_ITEMS
4. The user describes a plan, project or goal to work toward, or wants a fresh plan -> CHECKLIST: short topic
5. The user voices a strong current emotion they may want to track -> MOOD_TRACKER
6. The user voices self-doubt or needs encouragement toward something -> AFFIRMATION: short theme
7. The user asks something that needs fresh facts from the web -> SEARCH: the query
8. Anything else -> CHAT`

const decisionRulesNoSearch = `Apply these rules in order; the first match wins unless the message clearly asks for several things at once:
1. The user is in acute distress (panicking, spiralling, struggling to breathe) -> BREATHING
2. The user states one specific actionable item to put on their list -> ADD_ITEM: the item text
3. The user asks for more items, more steps or "what else" for their existing checklist -> MORE_ITEMS
4. The user describes a plan, project or goal to work toward, or wants a fresh plan -> CHECKLIST: short topic
5. The user voices a strong current emotion they may want to track -> MOOD_TRACKER
6. The user voices self-doubt or needs encouragement toward something -> AFFIRMATION: short theme
7. Anything else -> CHAT`

const decisionHistoryWindow = 6

func (r *AgentRouter) decisionPrompt(utterance string, history []db.Message) string {
	var sb strings.Builder
	sb.WriteString("You are the routing layer of a wellbeing companion app. Decide which tools, if any, the latest user message calls for.\n\n")
	if r.searchEnabled {
		sb.WriteString(decisionRules)
	} else {
		sb.WriteString(decisionRulesNoSearch)
	}
	sb.WriteString("\n\nReply with a single line. Chain directives with \" | \" only when the message truly calls for more than one. Use exactly the directive forms above and nothing else.\n")

	if start := len(history) - decisionHistoryWindow; start > 0 {
		history = history[start:]
	}
	if len(history) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, msg := range history {
			speaker := "User"
			if msg.Role == db.RoleAgent {
				speaker = "Companion"
			}
			if msg.Tool != nil {
				fmt.Fprintf(&sb, "%s: [displayed a %s tool]\n", speaker, humanToolKind(msg.Tool.Kind))
				continue
			}
			fmt.Fprintf(&sb, "%s: %s\n", speaker, msg.Content)
		}
	}

	fmt.Fprintf(&sb, "\nLatest user message: %s\n\nDirective line:", utterance)
	return sb.String()
}

// parseDirectives scans the model reply line by line and keeps the first line
// that yields at least one directive. Unknown segments are skipped; a search
// directive is dropped when search is off.
func (r *AgentRouter) parseDirectives(reply string) []Directive {
	for _, line := range strings.Split(reply, "\n") {
		var directives []Directive
		for _, segment := range strings.Split(line, "|") {
			d, ok := parseDirectiveSegment(segment)
			if !ok {
				continue
			}
			if d.Kind == DirectiveSearch && !r.searchEnabled {
				r.logger.Debug("Dropping search directive; search is disabled")
				continue
			}
			directives = append(directives, d)
		}
		if len(directives) > 0 {
			return directives
		}
	}
	return nil
}

func parseDirectiveSegment(segment string) (Directive, bool) {
	segment = strings.Trim(strings.TrimSpace(segment), "`\"'")
	segment = strings.TrimLeft(segment, "-*0123456789. \t")
	if segment == "" {
		return Directive{}, false
	}

	token := segment
	arg := ""
	if i := strings.Index(segment, ":"); i >= 0 {
		token = segment[:i]
		arg = strings.TrimSpace(segment[i+1:])
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	token = strings.TrimRight(token, ".!")

	switch token {
	case "CHAT":
		return Directive{Kind: DirectiveChat}, true
	case "SEARCH":
		return Directive{Kind: DirectiveSearch, Arg: arg}, true
	case "CHECKLIST":
		return Directive{Kind: DirectiveCreateChecklist, Arg: arg}, true
	case "ADD_ITEM", "ADD ITEM":
		if arg == "" {
			return Directive{}, false
		}
		return Directive{Kind: DirectiveAddChecklistItem, Arg: arg}, true
	case "MORE_ITEMS", "MORE ITEMS":
		return Directive{Kind: DirectiveMoreChecklistItems}, true
	case "BREATHING":
		return Directive{Kind: DirectiveCreateBreathing}, true
	case "MOOD_TRACKER", "MOOD":
		return Directive{Kind: DirectiveCreateMoodTracker}, true
	case "AFFIRMATION":
		return Directive{Kind: DirectiveCreateAffirmation, Arg: arg}, true
	default:
		return Directive{}, false
	}
}

// ============================================================================
// Marker strategy
// ============================================================================

// ToolMarker is one tool request embedded in a model reply as a tag like
// <tool kind="checklist" theme="packing" />.
type ToolMarker struct {
	Kind  db.ToolKind
	Theme string
}

var (
	toolTagRe   = regexp.MustCompile(`<tool\b[^>]*>`)
	kindAttrRe  = regexp.MustCompile(`kind\s*=\s*["']([^"']*)["']`)
	themeAttrRe = regexp.MustCompile(`theme\s*=\s*["']([^"']*)["']`)
	doubleSpace = regexp.MustCompile(`[ \t]{2,}`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// ParseToolMarkers extracts tool markers from a model reply and returns the
// reply with every tag stripped. Tags with an unknown or missing kind are
// stripped but yield no marker.
func ParseToolMarkers(reply string) ([]ToolMarker, string) {
	var markers []ToolMarker
	cleaned := toolTagRe.ReplaceAllStringFunc(reply, func(tag string) string {
		kind := ""
		if m := kindAttrRe.FindStringSubmatch(tag); m != nil {
			kind = strings.TrimSpace(m[1])
		}
		if k := db.ToolKind(kind); k.Valid() {
			theme := ""
			if m := themeAttrRe.FindStringSubmatch(tag); m != nil {
				theme = strings.TrimSpace(m[1])
			}
			markers = append(markers, ToolMarker{Kind: k, Theme: theme})
		}
		return ""
	})
	cleaned = doubleSpace.ReplaceAllString(cleaned, " ")
	cleaned = blankLines.ReplaceAllString(cleaned, "\n\n")
	return markers, strings.TrimSpace(cleaned)
}

// DistinctMarkerKinds returns the marker kinds in first-seen order, one entry
// per kind, for pending signals.
func DistinctMarkerKinds(markers []ToolMarker) []db.ToolKind {
	seen := map[db.ToolKind]bool{}
	var kinds []db.ToolKind
	for _, m := range markers {
		if !seen[m.Kind] {
			seen[m.Kind] = true
			kinds = append(kinds, m.Kind)
		}
	}
	return kinds
}

// humanToolKind renders a tool kind for prose, e.g. "mood tracker".
func humanToolKind(kind db.ToolKind) string {
	return strings.ReplaceAll(string(kind), "_", " ")
}
