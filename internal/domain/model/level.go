package model

import (
	"strings"

	"speech-flow-bot/internal/domain"
)

// Level is the learner's self-declared English level.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelElementary   Level = "elementary"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// DefaultLevel is assigned to freshly registered users.
const DefaultLevel = LevelIntermediate

// Levels lists every level in keyboard order.
var Levels = []Level{LevelBeginner, LevelElementary, LevelIntermediate, LevelAdvanced}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Levels {
		if v == l {
			return l, nil
		}
	}
	return "", domain.ErrInvalidLevel
}

func (l Level) String() string { return string(l) }

// Title is the capitalized label used on buttons and in messages.
func (l Level) Title() string {
	if l == "" {
		return ""
	}
	return strings.ToUpper(string(l[:1])) + string(l[1:])
}
