package display

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/card-countdown/internal/config"
)

func TestLabels_DaysLabel(t *testing.T) {
	tests := []struct {
		lang string
		days int
		want string
	}{
		{"en", 1, "day"},
		{"en", 5, "days"},
		{"en", 0, "Today!"},
		{"en", -1, "day ago"},
		{"en", -30, "days ago"},
		{"de", 1, "Tag"},
		{"de", 12, "Tage"},
		{"de", 0, "Heute!"},
		{"de", -1, "Tag her"},
		{"de", -2, "Tage her"},
		{"fr", 3, "days"},
	}

	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, NewLabels(tt.lang).DaysLabel(tt.days))
		})
	}
}

func TestLabels_Date(t *testing.T) {
	assert.Equal(t, "Date: 2025-12-24", NewLabels("en").Date("2025-12-24"))
	assert.Equal(t, "Datum: 2025-12-24", NewLabels("de").Date("2025-12-24"))
}

func TestLabels_TextFallback(t *testing.T) {
	l := NewLabels("de")
	assert.Equal(t, "Fehler", l.Text(config.TKeyErrorTitle, config.FallbackErrorTitle))
	assert.Equal(t, "built-in", l.Text("no_such_key", "built-in"))
}

func TestLanguages(t *testing.T) {
	langs := Languages()
	for _, want := range config.SupportedLanguages {
		assert.Contains(t, langs, want)
	}
}

// TestI18nIntegrity ensures every translation key used by the panel exists
// in every locale file, and that no locale carries stray keys.
func TestI18nIntegrity(t *testing.T) {
	keysToCheck := []string{
		config.TKeyWelcomeTitle,
		config.TKeyWelcomeHint,
		config.TKeyWelcomeSetup,
		config.TKeyNoCardTitle,
		config.TKeyNoCardHint1,
		config.TKeyNoCardHint2,
		config.TKeyErrorTitle,
		config.TKeyInvalidDate,
		config.TKeyDays,
		config.TKeyDaysAgo,
		config.TKeyToday,
		config.TKeyDate,
	}
	defined := make(map[string]bool, len(keysToCheck))
	for _, k := range keysToCheck {
		defined[k] = true
	}

	entries, err := os.ReadDir("locales")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		t.Run(entry.Name(), func(t *testing.T) {
			content, err := os.ReadFile("locales/" + entry.Name())
			require.NoError(t, err)

			var messages map[string]any
			require.NoError(t, json.Unmarshal(content, &messages), "JSON must be valid")

			for key := range defined {
				assert.Containsf(t, messages, key, "key %q missing in %s", key, entry.Name())
			}
			for key := range messages {
				if strings.HasPrefix(key, "_") {
					continue
				}
				if !defined[key] {
					t.Logf("Warning: key %q in %s is not referenced in config.go", key, entry.Name())
				}
			}
		})
	}
}
