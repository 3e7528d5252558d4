package relay

import (
	"fmt"

	"github.com/relaybridge-project/relaybridge/internal/config"
)

// langTemplates holds the per-language notice formats. The supported
// set is closed; unsupported codes were already normalized away at
// configuration time.
type langTemplates struct {
	joined string
	left   string
}

var templatesByLang = map[string]langTemplates{
	"en": {
		joined: "%s joined the game",
		left:   "%s left the game",
	},
	"zh-cn": {
		joined: "%s加入了游戏",
		left:   "%s退出了游戏",
	},
}

func templatesFor(lang string) langTemplates {
	if t, ok := templatesByLang[lang]; ok {
		return t
	}
	return templatesByLang[config.DefaultLanguage]
}

// loginMessage renders the join notice for the given language.
func loginMessage(lang, player string) string {
	return fmt.Sprintf(templatesFor(lang).joined, player)
}

// logoutMessage renders the leave notice for the given language.
func logoutMessage(lang, player string) string {
	return fmt.Sprintf(templatesFor(lang).left, player)
}
