package display

import (
	"embed"
	"log/slog"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/card-countdown/internal/config"
	"golang.org/x/text/language"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed locales/*.json
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleLang []string
)

// loadBundle parses the embedded locale files once per process.
func loadBundle() (*i18n.Bundle, []string) {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			slog.Error(config.ErrLocalesAccess,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyError, err,
			)
			return
		}

		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
				slog.Debug(config.MsgLocaleSkip,
					config.LogKeyComponent, config.CompI18n,
					config.LogKeyFile, name,
				)
				continue
			}

			langCode := strings.TrimSuffix(strings.TrimPrefix(name, "active."), ".json")
			if langCode == "" {
				slog.Warn(config.MsgLocaleBadName,
					config.LogKeyComponent, config.CompI18n,
					config.LogKeyFile, name,
				)
				continue
			}

			if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
				slog.Error(config.ErrLocaleLoad,
					config.LogKeyComponent, config.CompI18n,
					config.LogKeyFile, name,
					config.LogKeyError, err,
				)
				continue
			}
			bundleLang = append(bundleLang, langCode)
			slog.Debug(config.MsgLocaleLoaded,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyLang, langCode,
			)
		}
	})
	return bundle, bundleLang
}

// Languages returns the language codes with an embedded locale file.
func Languages() []string {
	_, langs := loadBundle()
	return langs
}

// Labels translates the panel texts for one language.
// Unknown languages fall back to English, missing keys to built-in English text.
type Labels struct {
	loc *i18n.Localizer
}

// NewLabels returns the labels for lang, e.g. "de".
func NewLabels(lang string) *Labels {
	b, _ := loadBundle()
	return &Labels{loc: i18n.NewLocalizer(b, lang, config.DefaultLanguage)}
}

// Text translates a simple message.
func (l *Labels) Text(id, fallback string) string {
	return l.localize(&i18n.LocalizeConfig{
		DefaultMessage: &i18n.Message{ID: id, Other: fallback},
	})
}

// Date renders the "Date: YYYY-MM-DD" line.
func (l *Labels) Date(iso string) string {
	return l.localize(&i18n.LocalizeConfig{
		DefaultMessage: &i18n.Message{ID: config.TKeyDate, Other: config.FallbackDate},
		TemplateData:   map[string]string{"Date": iso},
	})
}

// DaysLabel is the word under the big number: days, day, today or days ago.
func (l *Labels) DaysLabel(days int) string {
	switch {
	case days < 0:
		return l.plural(config.TKeyDaysAgo, -days, config.FallbackDayAgo, config.FallbackDaysAgo)
	case days == 0:
		return l.Text(config.TKeyToday, config.FallbackToday)
	default:
		return l.plural(config.TKeyDays, days, config.FallbackDay, config.FallbackDays)
	}
}

func (l *Labels) plural(id string, n int, one, other string) string {
	return l.localize(&i18n.LocalizeConfig{
		DefaultMessage: &i18n.Message{ID: id, One: one, Other: other},
		PluralCount:    n,
	})
}

func (l *Labels) localize(lc *i18n.LocalizeConfig) string {
	msg, err := l.loc.Localize(lc)
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, lc.DefaultMessage.ID,
			config.LogKeyError, err,
		)
	}
	return msg
}
