package application

import (
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/i18n"

	"github.com/samber/lo"
)

// Callback data carried by inline buttons.
const (
	CbLevelPrefix       = "level:"
	CbMenuHow           = "menu:how"
	CbMenuStats         = "menu:stats"
	CbMenuVocab         = "menu:vocab"
	CbMenuLevel         = "menu:level"
	CbMenuBack          = "menu:back"
	CbVocabClear        = "vocab:clear"
	CbVocabClearConfirm = "vocab:clear_confirm"
	CbVocabExport       = "vocab:export"
)

// Screen is a rendered bot message: Markdown text plus optional inline keyboard rows.
type Screen struct {
	Text    string
	Buttons [][]adapter.InlineButton
}

// Document is a file sent to the chat.
type Document struct {
	Name    string
	Caption string
	Data    []byte
}

func levelKeyboard() [][]adapter.InlineButton {
	buttons := lo.Map(model.Levels, func(l model.Level, _ int) adapter.InlineButton {
		return adapter.InlineButton{Text: l.Title(), Data: CbLevelPrefix + l.String()}
	})
	return lo.Chunk(buttons, 2)
}

func menuKeyboard(tr *i18n.Translator) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: tr.T("btn_how"), Data: CbMenuHow}},
		{{Text: tr.T("btn_stats"), Data: CbMenuStats}, {Text: tr.T("btn_vocab"), Data: CbMenuVocab}},
		{{Text: tr.T("btn_level"), Data: CbMenuLevel}},
	}
}

func backKeyboard(tr *i18n.Translator) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{{Text: tr.T("btn_back_menu"), Data: CbMenuBack}}}
}

func vocabKeyboard(tr *i18n.Translator) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: tr.T("btn_vocab_clear"), Data: CbVocabClear}, {Text: tr.T("btn_vocab_export"), Data: CbVocabExport}},
		{{Text: tr.T("btn_back"), Data: CbMenuBack}},
	}
}

func clearConfirmKeyboard(tr *i18n.Translator) [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: tr.T("btn_vocab_clear_yes"), Data: CbVocabClearConfirm}},
		{{Text: tr.T("btn_back"), Data: CbMenuVocab}},
	}
}
