package models

import "strings"

// SupportedLanguages maps BCP-47 language codes to display names.
var SupportedLanguages = map[string]string{
	"en-US": "English (US)",
	"pt-BR": "Brazilian Portuguese",
	"es-ES": "Spanish (Spain)",
	"fr-FR": "French (France)",
	"de-DE": "German (Germany)",
	"it-IT": "Italian (Italy)",
	"ja-JP": "Japanese (Japan)",
	"ko-KR": "Korean (South Korea)",
	"nl-NL": "Dutch (Netherlands)",
	"pl-PL": "Polish (Poland)",
	"ru-RU": "Russian (Russia)",
	"zh-CN": "Chinese (Mandarin, China)",
}

// SeparationModels maps model ids to display names. The ids are the only
// values the separation engine accepts.
var SeparationModels = map[string]string{
	"htdemucs":  "High Quality (HTDEMUCS) - Best Results",
	"mdx_extra": "Balanced (MDX-Extra) - Good Quality, Faster",
	"mdx":       "Fast (MDX) - Quick Processing",
}

// ProcessingModes maps mode ids to display names.
var ProcessingModes = map[string]string{
	ModePreserveMusic: "Preserve Background Music (AI Separation)",
	ModeReplaceAll:    "Replace Entire Audio Track (Fast & Simple)",
}

// voiceSuffixes are the Chirp3 HD voice variants offered per language.
var voiceSuffixes = map[string]string{
	"Zephyr": "Zephyr (Recommended)",
	"Puck":   "Puck (Warm)",
	"Charon": "Charon (Professional)",
	"Kore":   "Kore (Friendly)",
	"Fenrir": "Fenrir (Deep)",
	"Aoede":  "Aoede (Smooth)",
}

// AvailableVoices maps language code to voice name to display name.
var AvailableVoices = buildVoiceCatalog()

func buildVoiceCatalog() map[string]map[string]string {
	catalog := make(map[string]map[string]string, len(SupportedLanguages))
	for lang := range SupportedLanguages {
		voices := make(map[string]string, len(voiceSuffixes))
		for suffix, label := range voiceSuffixes {
			voices[lang+"-Chirp3-HD-"+suffix] = label
		}
		catalog[lang] = voices
	}
	return catalog
}

// DefaultVoice returns the default voice for a language.
func DefaultVoice(language string) string {
	return language + "-Chirp3-HD-Zephyr"
}

// IsSupportedLanguage reports whether the language code is supported.
func IsSupportedLanguage(code string) bool {
	_, ok := SupportedLanguages[code]
	return ok
}

// IsKnownVoice reports whether the voice name exists for any language.
func IsKnownVoice(voice string) bool {
	for _, voices := range AvailableVoices {
		if _, ok := voices[voice]; ok {
			return true
		}
	}
	return false
}

// IsSeparationModel reports whether the model id is valid.
func IsSeparationModel(model string) bool {
	_, ok := SeparationModels[model]
	return ok
}

// IsProcessingMode reports whether the mode id is valid.
func IsProcessingMode(mode string) bool {
	_, ok := ProcessingModes[mode]
	return ok
}

// IsAllowedVideoFilename reports whether the filename carries a supported
// video extension.
func IsAllowedVideoFilename(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".mov")
}
