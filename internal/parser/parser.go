// Package parser splits one raw multi-speaker completion into ordered
// (speaker, content) utterances using the bracketed speaker-tag convention.
//
// The grammar is line-based and deliberately small. Every line is classified
// as either a tagged line (starts a new utterance) or noise (dropped). Noise
// is never merged into the previous utterance; the drop count is reported so
// callers can log prompt-format drift instead of masking it.
package parser

import (
	"strings"

	"chatstage/internal/types"
)

// Result holds the parsed utterances plus how many non-empty lines were
// discarded as noise.
type Result struct {
	Utterances   []types.Utterance
	DroppedLines int
}

// Empty reports whether nothing was recognized. This is not an error
// condition: callers treat it as "nothing to deliver".
func (r Result) Empty() bool {
	return len(r.Utterances) == 0
}

// bracket pairs recognized at line start. Both ASCII and fullwidth styles
// appear in model output depending on the language of the conversation.
var bracketPairs = []struct {
	open  string
	close string
}{
	{"[", "]"},
	{"【", "】"},
}

// Parse classifies each line of raw and returns utterances in input order.
// Zero recognized lines yields an empty result, not an error.
func Parse(raw string) Result {
	var res Result

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, content, ok := classifyLine(line)
		if !ok {
			res.DroppedLines++
			continue
		}
		res.Utterances = append(res.Utterances, types.Utterance{
			SpeakerName: name,
			Content:     content,
		})
	}

	return res
}

// classifyLine returns the speaker name and content of a tagged line.
// A line is tagged when it starts with an opening bracket, has a matching
// closing bracket, and the name between them is non-empty.
func classifyLine(line string) (name, content string, ok bool) {
	for _, pair := range bracketPairs {
		rest, found := strings.CutPrefix(line, pair.open)
		if !found {
			continue
		}
		name, content, found = strings.Cut(rest, pair.close)
		if !found {
			return "", "", false
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return "", "", false
		}
		return name, strings.TrimSpace(content), true
	}
	return "", "", false
}
