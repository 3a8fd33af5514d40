package emotion

import (
	"strings"

	"github.com/reveriehq/reverie/internal/models"
)

// BuildPromptGuide produces a compact instruction snippet for injection into the
// enrichment system prompt, steering the generated poems and tips toward the
// detected emotion.
func BuildPromptGuide(e models.Emotion) string {
	var b strings.Builder
	b.WriteString("\n<EMOTION GUIDE>\nThe writer's primary emotion tonight:\n")

	switch e {
	case models.EmotionAnxious:
		b.WriteString("- They feel anxious. Write grounding, steady imagery. Tips should slow things down.\n")
	case models.EmotionSad:
		b.WriteString("- They feel sad. Write gentle, warm imagery. Acknowledge the feeling before consoling.\n")
	case models.EmotionAngry:
		b.WriteString("- They feel angry. Write cooling, spacious imagery. Never argue with the feeling.\n")
	case models.EmotionTired:
		b.WriteString("- They feel depleted. Write restful imagery. Tips should ask for almost nothing.\n")
	case models.EmotionHopeful:
		b.WriteString("- They feel hopeful. Write bright, open imagery that honors the momentum.\n")
	default:
		b.WriteString("- They feel calm. Write quiet, unhurried imagery.\n")
	}

	b.WriteString("- NEVER mirror despair, self-blame, or unsafe language.\n")
	b.WriteString("</EMOTION GUIDE>\n")
	return b.String()
}
