package synth

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/leafline-ai/voiced/internal/config"
)

// Cheap per-language marker words. Good enough to route short retail phrases
// to the right voice; anything unrecognized falls through to English.
var languageMarkers = map[string][]string{
	"fr": {"le", "la", "les", "bonjour", "merci", "vous", "est", "avec", "pour", "votre"},
	"es": {"el", "los", "hola", "gracias", "usted", "está", "con", "para", "señor", "tienda"},
}

var accentHints = map[string]string{
	"àâçéèêëîïôùûœ": "fr",
	"áéíóúñ¿¡":      "es",
}

// DetectLanguage guesses a language code from the text. Returns "en" when
// nothing matches.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)

	for hints, lang := range accentHints {
		if strings.ContainsAny(lower, hints) {
			return lang
		}
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !strings.ContainsRune("àâçéèêëîïôùûœáíóúñ", r)
	})
	scores := map[string]int{}
	for _, w := range words {
		for lang, markers := range languageMarkers {
			for _, m := range markers {
				if w == m {
					scores[lang]++
				}
			}
		}
	}

	best, bestScore := "en", 1 // need at least two marker hits to switch
	for lang, score := range scores {
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}

// VoiceCatalog resolves voice ids to model files for a configured model
// directory, falling back to the default voice when a model is absent.
type VoiceCatalog struct {
	modelDir     string
	defaultVoice string
	byID         map[string]config.VoiceModel
	byLanguage   map[string]config.VoiceModel
}

func NewVoiceCatalog(cfg config.SynthConfig) *VoiceCatalog {
	c := &VoiceCatalog{
		modelDir:     cfg.ModelDir,
		defaultVoice: cfg.DefaultVoice,
		byID:         make(map[string]config.VoiceModel),
		byLanguage:   make(map[string]config.VoiceModel),
	}
	for _, v := range cfg.Voices {
		c.byID[v.ID] = v
		if _, ok := c.byLanguage[v.Language]; !ok {
			c.byLanguage[v.Language] = v
		}
	}
	return c
}

// Voices lists the configured voices with model availability.
type VoiceInfo struct {
	ID        string `json:"id"`
	Language  string `json:"language"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
}

func (c *VoiceCatalog) Voices() []VoiceInfo {
	out := make([]VoiceInfo, 0, len(c.byID))
	for _, v := range c.byID {
		out = append(out, VoiceInfo{
			ID:        v.ID,
			Language:  v.Language,
			Model:     v.Model,
			Available: c.modelPresent(v),
		})
	}
	return out
}

func (c *VoiceCatalog) Has(voiceID string) bool {
	_, ok := c.byID[voiceID]
	return ok
}

// Resolve picks a voice for the request: explicit voice id wins, then the
// language mapping, then the default. A voice whose model file is missing on
// disk falls back to the default voice instead of failing the request.
func (c *VoiceCatalog) Resolve(voiceID, language string) (config.VoiceModel, string) {
	if voiceID != "" {
		if v, ok := c.byID[voiceID]; ok && c.modelPresent(v) {
			return v, ""
		}
	}
	if v, ok := c.byLanguage[language]; ok && c.modelPresent(v) {
		return v, ""
	}
	if v, ok := c.byID[c.defaultVoice]; ok {
		return v, "fell back to default voice"
	}
	return config.VoiceModel{ID: c.defaultVoice, Language: "en"}, "voice not configured, using default id"
}

// ModelPath returns the absolute model file path for a voice.
func (c *VoiceCatalog) ModelPath(v config.VoiceModel) string {
	if v.Model == "" {
		return ""
	}
	return filepath.Join(c.modelDir, v.Model)
}

func (c *VoiceCatalog) modelPresent(v config.VoiceModel) bool {
	if v.Model == "" {
		return false
	}
	_, err := os.Stat(c.ModelPath(v))
	return err == nil
}
