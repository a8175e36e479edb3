package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solace-ai/solace/pkg/utils"
)

// memoryNoneSentinel is the literal the extraction prompt asks for when an
// exchange holds nothing worth keeping.
const memoryNoneSentinel = "NONE"

// MemoryExtractionService mines each completed exchange for durable facts
// about the user and stores them as memories. Extraction is best-effort and
// detached from the reply path: a failure here never delays or breaks a turn.
type MemoryExtractionService struct {
	generator Generator
	memory    *MemoryService
	logger    *slog.Logger
}

func NewMemoryExtractionService(generator Generator, memory *MemoryService) *MemoryExtractionService {
	return &MemoryExtractionService{
		generator: generator,
		memory:    memory,
		logger:    utils.GetLogger(),
	}
}

// ExtractAsync kicks off extraction for one exchange and returns immediately.
// The background context keeps it alive after the originating request ends.
func (s *MemoryExtractionService) ExtractAsync(convID, userText, replyText string) {
	go s.extract(context.Background(), convID, userText, replyText)
}

func (s *MemoryExtractionService) extract(ctx context.Context, convID, userText, replyText string) {
	raw, err := s.generator.Generate(ctx, extractionPrompt(userText, replyText))
	if err != nil {
		s.logger.Warn("Memory extraction failed", "conversationId", convID, "error", err)
		return
	}

	facts := parseExtractedFacts(raw)
	if len(facts) == 0 {
		return
	}
	for _, fact := range facts {
		if err := s.memory.Index(ctx, convID, fact); err != nil {
			// Embedding or store failure drops this fact; the rest still land.
			s.logger.Warn("Skipping memory fact", "conversationId", convID, "error", err)
			continue
		}
	}
	s.logger.Debug("Memory extraction finished", "conversationId", convID, "facts", len(facts))
}

func extractionPrompt(userText, replyText string) string {
	var sb strings.Builder
	sb.WriteString("You are the memory layer of a wellbeing companion. Review the exchange below and pull out only durable, reusable facts about the user: stable preferences, life circumstances, ongoing goals, people who matter to them.\n")
	sb.WriteString("Do not record passing moods, pleasantries, or anything the user would not expect to be remembered.\n\n")
	sb.WriteString("Write one fact per line, third person, at most 3 lines. If nothing is worth remembering, reply with exactly ")
	sb.WriteString(memoryNoneSentinel)
	sb.WriteString(".\n\n")
	fmt.Fprintf(&sb, "User: %s\nCompanion: %s\n\nFacts:", userText, replyText)
	return sb.String()
}

// parseExtractedFacts turns the model reply into clean fact lines, tolerating
// bullets and numbering. The NONE sentinel, alone or per line, yields nothing.
func parseExtractedFacts(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, memoryNoneSentinel) {
		return nil
	}
	var facts []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. \t")
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, memoryNoneSentinel) {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}
