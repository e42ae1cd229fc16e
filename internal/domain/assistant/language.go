package assistant

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}']+`)

var languageKeywords = map[string]map[string]bool{
	LangFrench: set("bonjour", "salut", "merci", "je", "j'ai", "mal", "douleur", "dent", "dents",
		"gencive", "gencives", "carie", "rendez-vous", "rendez", "vous", "pourquoi", "comment",
		"est-ce", "mon", "ma", "mes", "avec", "depuis", "saigne", "dentiste", "oui", "non"),
	LangDutch: set("hallo", "goedemorgen", "goedendag", "bedankt", "dank", "ik", "heb", "pijn",
		"tand", "tanden", "kies", "tandvlees", "afspraak", "waarom", "hoe", "mijn", "met", "sinds",
		"bloedt", "tandarts", "ja", "nee", "het", "een"),
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// DetectLanguage counts language keywords in text. The language with the
// most hits wins; ties and texts without hits are English.
func DetectLanguage(text string) string {
	scores := map[string]int{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		for lang, words := range languageKeywords {
			if words[w] {
				scores[lang]++
			}
		}
	}
	switch {
	case scores[LangFrench] > scores[LangDutch]:
		return LangFrench
	case scores[LangDutch] > scores[LangFrench]:
		return LangDutch
	}
	return LangEnglish
}

// resolveLanguage prefers an explicit profile language.
func resolveLanguage(profile *UserProfile, message string) string {
	if profile != nil {
		switch l := strings.ToLower(strings.TrimSpace(profile.Language)); l {
		case LangEnglish, LangFrench, LangDutch:
			return l
		}
	}
	return DetectLanguage(message)
}

func normalizeMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case ModeDentist, ModeTriage:
		return m
	}
	return ModePatient
}

var languageNames = map[string]string{
	LangEnglish: "English",
	LangFrench:  "French",
	LangDutch:   "Dutch",
}

var fallbacks = map[string]map[string]string{
	LangEnglish: {
		ModePatient: "Thanks for your message. Our assistant is not available right now, but here is some general advice:\n" +
			"- Brush twice a day with fluoride toothpaste\n" +
			"- Clean between your teeth daily\n" +
			"- Call the practice if the problem persists\n" +
			"For anything urgent, please see a dentist as soon as possible.",
		ModeDentist: "The clinical assistant is unavailable at the moment. Please check the patient record directly:\n" +
			"1. Review the medical history and allergies\n" +
			"2. Check the last treatments and notes\n" +
			"3. Confirm current medications before prescribing",
		ModeTriage: "Automatic triage is unavailable. Please ask the patient:\n" +
			"1. Is there heavy bleeding, facial swelling or difficulty breathing?\n" +
			"2. How strong is the pain, from 1 to 10?\n" +
			"3. When did the symptoms start?\n" +
			"If any emergency sign is present, the patient should see a dentist today.",
	},
	LangFrench: {
		ModePatient: "Merci pour votre message. Notre assistant n'est pas disponible pour le moment, voici quelques conseils généraux :\n" +
			"- Brossez-vous les dents deux fois par jour avec un dentifrice fluoré\n" +
			"- Nettoyez entre vos dents chaque jour\n" +
			"- Appelez le cabinet si le problème persiste\n" +
			"En cas d'urgence, consultez un dentiste au plus vite.",
		ModeDentist: "L'assistant clinique est indisponible. Veuillez consulter directement le dossier du patient :\n" +
			"1. Vérifiez les antécédents médicaux et les allergies\n" +
			"2. Consultez les derniers traitements et notes\n" +
			"3. Confirmez les médicaments en cours avant de prescrire",
		ModeTriage: "Le triage automatique est indisponible. Demandez au patient :\n" +
			"1. Y a-t-il un saignement abondant, un gonflement du visage ou une difficulté à respirer ?\n" +
			"2. Quelle est l'intensité de la douleur, de 1 à 10 ?\n" +
			"3. Depuis quand les symptômes sont-ils présents ?\n" +
			"En présence d'un signe d'urgence, le patient doit consulter un dentiste aujourd'hui.",
	},
	LangDutch: {
		ModePatient: "Bedankt voor uw bericht. Onze assistent is momenteel niet beschikbaar, hier zijn enkele algemene tips:\n" +
			"- Poets twee keer per dag met fluoridetandpasta\n" +
			"- Reinig dagelijks tussen uw tanden\n" +
			"- Bel de praktijk als het probleem aanhoudt\n" +
			"Bij spoed kunt u het best zo snel mogelijk naar de tandarts gaan.",
		ModeDentist: "De klinische assistent is niet beschikbaar. Raadpleeg het patiëntendossier rechtstreeks:\n" +
			"1. Controleer de medische voorgeschiedenis en allergieën\n" +
			"2. Bekijk de laatste behandelingen en notities\n" +
			"3. Bevestig de huidige medicatie voordat u iets voorschrijft",
		ModeTriage: "Automatische triage is niet beschikbaar. Vraag de patiënt:\n" +
			"1. Is er hevige bloeding, zwelling van het gezicht of moeite met ademen?\n" +
			"2. Hoe erg is de pijn, van 1 tot 10?\n" +
			"3. Sinds wanneer zijn de klachten er?\n" +
			"Bij een spoedsignaal moet de patiënt vandaag nog naar de tandarts.",
	},
}

func fallbackText(lang, mode string) string {
	if byMode, ok := fallbacks[lang]; ok {
		if text, ok := byMode[mode]; ok {
			return text
		}
	}
	return fallbacks[LangEnglish][ModePatient]
}
