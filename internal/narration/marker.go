package narration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Marker is an Original Audio Marker (spec §3): an inline annotation
// instructing the TTS stage to append a clip of the source video's
// original audio after the synthesized narration.
type Marker struct {
	Start   float64
	End     float64
	Speaker string
}

var markerPattern = regexp.MustCompile(`\[ORIGINAL_AUDIO:([0-9]+(?:\.[0-9]+)?):([0-9]+(?:\.[0-9]+)?):([^\]]*)\]`)

// ParseMarker extracts a trailing Original Audio Marker from text,
// returning the text with the marker removed and the parsed marker, or
// a nil marker if none is present (spec P7: given `"X. Y...
// [ORIGINAL_AUDIO:10.5:13.2:Ada]"`, returns `"X. Y..."` and
// `{10.5, 13.2, "Ada"}`).
func ParseMarker(text string) (string, *Marker) {
	loc := markerPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}
	match := markerPattern.FindStringSubmatch(text)

	start, err1 := strconv.ParseFloat(match[1], 64)
	end, err2 := strconv.ParseFloat(match[2], 64)
	if err1 != nil || err2 != nil {
		return text, nil
	}

	clean := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return clean, &Marker{Start: start, End: end, Speaker: match[3]}
}

// FormatMarker renders a marker back into its inline string form.
func FormatMarker(m Marker) string {
	return fmt.Sprintf("[ORIGINAL_AUDIO:%s:%s:%s]", trimFloat(m.Start), trimFloat(m.End), m.Speaker)
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}
