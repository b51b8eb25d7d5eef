package ai

import "github.com/gabriel-vasile/mimetype"

// detectFormat sniffs the container of synthesized audio.
func detectFormat(b []byte, fallback string) string {
	m := mimetype.Detect(b)
	switch {
	case m.Is("audio/wav"):
		return "wav"
	case m.Is("audio/ogg"), m.Is("application/ogg"):
		return "ogg"
	case m.Is("audio/mpeg"):
		return "mp3"
	}
	return fallback
}
