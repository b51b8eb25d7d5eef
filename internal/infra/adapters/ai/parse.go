package ai

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
)

type correctionPayload struct {
	CorrectedSentence string       `json:"corrected_sentence"`
	Explanation       string       `json:"explanation"`
	ErrorCategory     string       `json:"error_category"`
	MistakeText       string       `json:"mistake_text"`
	VocabularyItems   []vocabEntry `json:"vocabulary_items"`
}

// vocabEntry accepts {"word": .., "definition": ..} as well as a bare string.
type vocabEntry model.VocabularyItem

func (v *vocabEntry) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v.Word = s
		return nil
	}
	var obj struct {
		Word        string `json:"word"`
		Phrase      string `json:"phrase"`
		Definition  string `json:"definition"`
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	v.Word = firstNonEmpty(obj.Word, obj.Phrase)
	v.Definition = firstNonEmpty(obj.Definition, obj.Translation)
	return nil
}

// parseCorrection decodes the model output strictly. Anything that is not a
// JSON object with a corrected sentence is ErrMalformedResponse.
func parseCorrection(raw, original string) (model.Correction, error) {
	body := stripFences(raw)
	if body == "" {
		return model.Correction{}, fmt.Errorf("correction: %w", domain.ErrEmptyResponse)
	}

	var p correctionPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return model.Correction{}, fmt.Errorf("correction: %w: %v", domain.ErrMalformedResponse, err)
	}
	corrected := strings.TrimSpace(p.CorrectedSentence)
	if corrected == "" {
		return model.Correction{}, fmt.Errorf("correction: %w: missing corrected_sentence", domain.ErrMalformedResponse)
	}

	items := make([]model.VocabularyItem, 0, len(p.VocabularyItems))
	for _, it := range p.VocabularyItems {
		if w := strings.TrimSpace(it.Word); w != "" {
			items = append(items, model.VocabularyItem{Word: w, Definition: strings.TrimSpace(it.Definition)})
		}
	}

	category := strings.TrimSpace(p.ErrorCategory)
	if category == "" {
		category = model.ErrorCategoryNone
	}
	mistake := strings.TrimSpace(p.MistakeText)
	if mistake == "" && !strings.EqualFold(category, model.ErrorCategoryNone) {
		mistake = strings.TrimSpace(original)
	}

	return model.Correction{
		CorrectedText:   corrected,
		Explanation:     strings.TrimSpace(p.Explanation),
		VocabularyItems: items,
		ErrorCategory:   category,
		MistakeText:     mistake,
	}, nil
}

// stripFences removes a ```json ... ``` wrapper some models add despite
// the JSON response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
