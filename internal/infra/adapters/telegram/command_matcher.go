package telegram

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"github.com/dghubble/trie"
)

// commandMatcher resolves typed commands and suggests the closest known one for typos.
type commandMatcher struct {
	commands atomic.Pointer[trie.RuneTrie]
}

const maxSuggestDistance = 3

func newCommandMatcher(names []string) *commandMatcher {
	t := trie.NewRuneTrie()
	for _, n := range names {
		t.Put(n, n)
	}
	m := &commandMatcher{}
	m.commands.Store(t)
	return m
}

// Match reports an exact hit, or the closest suggestion when the command is unknown.
// Ties on distance prefer commands the input is a prefix of.
func (m *commandMatcher) Match(cmd string) (exact bool, suggestion string) {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	t := m.commands.Load()
	if cmd == "" {
		return false, ""
	}
	if t.Get(cmd) != nil {
		return true, cmd
	}

	type candidate struct {
		name   string
		dist   int
		prefix bool
	}
	var found []candidate
	_ = t.Walk(func(key string, _ interface{}) error {
		d := levenshtein.ComputeDistance(cmd, key)
		prefix := strings.HasPrefix(key, cmd)
		if d < maxSuggestDistance || prefix {
			found = append(found, candidate{name: key, dist: d, prefix: prefix})
		}
		return nil
	})
	if len(found) == 0 {
		return false, ""
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		if found[i].prefix != found[j].prefix {
			return found[i].prefix
		}
		return found[i].name < found[j].name
	})
	return false, found[0].name
}
