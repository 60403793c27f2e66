package handover

import (
	"fmt"
	"math"
	"strings"
	"time"

	"nurseos/internal/draft"
)

const (
	typingWPM    = 35
	dictationWPM = 120
	charsPerWord = 5
)

type KPI struct {
	Elapsed      string  `json:"tiempo"`
	Words        int     `json:"palabras"`
	VoiceWords   int     `json:"dictadas"`
	SavedMinutes float64 `json:"ahorro"`
	Devices      int     `json:"dispositivos"`
	PresetsUsed  int     `json:"presets"`
}

func CountWords(s string) int {
	return len(strings.Fields(s))
}

// VoiceWords estimates dictated words from dictated characters.
func VoiceWords(chars int) int {
	return int(math.Round(float64(chars) / charsPerWord))
}

// SavedMinutes is the typing time saved by dictating words, rounded to one
// decimal.
func SavedMinutes(voiceWords int) float64 {
	minutes := float64(voiceWords) * (1.0/typingWPM - 1.0/dictationWPM) * 60
	return math.Max(0, math.Round(minutes*10)/10)
}

func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%dm %ds", ms/60000, (ms%60000)/1000)
}

func computeKPI(elapsed time.Duration, fields draft.Payload, voiceChars, devices, presets int) KPI {
	words := 0
	for _, f := range Fields {
		words += CountWords(fields[f])
	}
	voice := VoiceWords(voiceChars)
	return KPI{
		Elapsed:      FormatElapsed(elapsed),
		Words:        words,
		VoiceWords:   voice,
		SavedMinutes: SavedMinutes(voice),
		Devices:      devices,
		PresetsUsed:  presets,
	}
}
