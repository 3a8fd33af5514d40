package breath

import (
	"log/slog"

	"github.com/reveriehq/reverie/internal/models"
)

// presets maps each supported emotion to its breathing pattern. Durations are in
// seconds; MinCycles is the minimum ambient-breathing dose before the reveal may
// start under the cycle-gated policy.
var presets = map[models.Emotion]models.CycleConfig{
	models.EmotionPeaceful: {InhaleSec: 4, Hold1Sec: 4, ExhaleSec: 4, Hold2Sec: 4, MinCycles: 3},
	models.EmotionAnxious:  {InhaleSec: 4, Hold1Sec: 7, ExhaleSec: 8, Hold2Sec: 0, MinCycles: 4},
	models.EmotionSad:      {InhaleSec: 4, Hold1Sec: 2, ExhaleSec: 6, Hold2Sec: 2, MinCycles: 3},
	models.EmotionAngry:    {InhaleSec: 4, Hold1Sec: 4, ExhaleSec: 6, Hold2Sec: 2, MinCycles: 4},
	models.EmotionTired:    {InhaleSec: 4, Hold1Sec: 0, ExhaleSec: 6, Hold2Sec: 0, MinCycles: 2},
	models.EmotionHopeful:  {InhaleSec: 3, Hold1Sec: 0, ExhaleSec: 3, Hold2Sec: 0, MinCycles: 3},
}

// ConfigForEmotion returns the breathing pattern for the given emotion, falling
// back to the peaceful pattern when the emotion is unknown or empty.
func ConfigForEmotion(e models.Emotion) models.CycleConfig {
	if cfg, ok := presets[e]; ok {
		return cfg
	}
	slog.Debug("ConfigForEmotion: no preset, using peaceful default", "emotion", e)
	return presets[models.EmotionPeaceful]
}
