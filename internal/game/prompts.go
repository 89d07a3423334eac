package game

import (
	"fmt"
	"strings"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

const (
	FallbackReply      = "I'm not sure how to respond to that right now."
	noRecentMemories   = "No recent memories yet."
	recentMemoryLimit  = 5
	relationshipFormat = "%s is another character in this story."
)

func extractionPrompt(message string) string {
	return fmt.Sprintf(`Extract the most important information from this message that a character should remember:
"%s"

Output only a brief summary of what should be remembered, in 1-2 sentences maximum.`, message)
}

func consolidationPrompt(entries []models.ShortTermMemory) string {
	var b strings.Builder
	b.WriteString("Summarize the following information into a concise and memorable summary:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Content)
	}
	b.WriteString("\nProvide a single paragraph summary (2-3 sentences) that captures the most important points.")
	return b.String()
}

func fallbackSummary(entries []models.ShortTermMemory) string {
	return fmt.Sprintf("Conversation summary of turns %d to %d.", entries[0].TurnNumber, entries[len(entries)-1].TurnNumber)
}

// persona is the character identity used in a reply prompt.
type persona struct {
	name        string
	personality string
	background  string
}

func joinCategory(memories []models.LongTermMemory, category models.MemoryCategory, bullet bool) string {
	var parts []string
	for _, m := range memories {
		if m.Category != category || m.Content == "" {
			continue
		}
		if bullet {
			parts = append(parts, "- "+m.Content)
		} else {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// characterPrompt renders the role-play instruction for one NPC. recent must
// already be ranked.
func characterPrompt(p persona, longTerm []models.LongTermMemory, recent []models.ShortTermMemory, dialog []models.DialogMessage) string {
	personality := joinCategory(longTerm, models.CategoryPersonality, false)
	if personality == "" {
		personality = p.personality
	}
	background := joinCategory(longTerm, models.CategoryBackground, false)
	if background == "" {
		background = p.background
	}
	relationships := joinCategory(longTerm, models.CategoryRelationship, true)
	goals := joinCategory(longTerm, models.CategoryGoal, true)

	var b strings.Builder
	fmt.Fprintf(&b, "You are roleplaying as a character named %q in an interactive story.\n\n", p.name)

	b.WriteString("LONG-TERM MEMORY (permanent character information):\n")
	fmt.Fprintf(&b, "- Personality: %s\n", personality)
	fmt.Fprintf(&b, "- Background: %s\n", background)
	if relationships != "" {
		fmt.Fprintf(&b, "- Relationships:\n%s\n", relationships)
	}
	if goals != "" {
		fmt.Fprintf(&b, "- Goals:\n%s\n", goals)
	}

	b.WriteString("\nSHORT-TERM MEMORY (recent events and conversations):\n")
	if len(recent) == 0 {
		b.WriteString(noRecentMemories + "\n")
	}
	for _, m := range recent {
		fmt.Fprintf(&b, "- %s\n", m.Content)
	}

	b.WriteString("\nCURRENT DIALOG CONTEXT:\n")
	if len(dialog) > 0 {
		player := dialog[0]
		fmt.Fprintf(&b, "The player (%s) just said: %q\n", player.CharacterName, player.Content)
		if len(dialog) > 1 {
			b.WriteString("Other characters have already replied this turn:\n")
			for _, m := range dialog[1:] {
				fmt.Fprintf(&b, "- %s: %s\n", m.CharacterName, m.Content)
			}
			last := dialog[len(dialog)-1]
			fmt.Fprintf(&b, "React to the latest message from %s as well as to the player.\n", last.CharacterName)
		}
	}

	fmt.Fprintf(&b, `
IMPORTANT: Your response MUST fully embody this character's personality and background. You ARE this character, not an AI pretending to be one. Think, feel, and respond exactly as %[1]s would, based on their unique traits and experiences.

Respond in first person as %[1]s, incorporating:
1. Your personality traits from long-term memory
2. Relevant background knowledge
3. Any pertinent short-term memories of recent interactions
4. Natural reaction to the current dialog

Keep your response concise (1-3 sentences) and conversational.
Do not use quotation marks or labels for who is speaking.`, p.name)
	return b.String()
}
