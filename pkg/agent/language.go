package agent

import "strings"

// Language is the detected dominant language of a user message.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

var frenchMarkers = map[string]struct{}{
	"je": {}, "tu": {}, "vous": {}, "nous": {}, "le": {}, "la": {}, "les": {},
	"un": {}, "une": {}, "des": {}, "du": {}, "est": {}, "sont": {}, "et": {},
	"pour": {}, "avec": {}, "mon": {}, "ma": {}, "mes": {}, "veux": {},
	"voudrais": {}, "cherche": {}, "panier": {}, "payer": {}, "acheter": {},
	"bonjour": {}, "merci": {}, "oui": {}, "non": {}, "combien": {},
	"quel": {}, "quelle": {}, "voir": {}, "prends": {},
}

var englishMarkers = map[string]struct{}{
	"i": {}, "you": {}, "the": {}, "a": {}, "an": {}, "is": {}, "are": {},
	"and": {}, "for": {}, "with": {}, "my": {}, "want": {}, "would": {},
	"like": {}, "looking": {}, "cart": {}, "pay": {}, "buy": {}, "show": {},
	"hello": {}, "hi": {}, "thanks": {}, "yes": {}, "no": {}, "how": {},
	"what": {}, "search": {}, "add": {},
}

// DetectLanguage scores a message against small French and English stop-word
// sets. Ties and unkeyed text default to English.
func DetectLanguage(text string) Language {
	french, english := 0, 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if _, ok := frenchMarkers[word]; ok {
			french++
		}
		if _, ok := englishMarkers[word]; ok {
			english++
		}
	}

	if french > english {
		return LanguageFrench
	}
	return LanguageEnglish
}

func languageInstruction(lang Language) string {
	if lang == LanguageFrench {
		return "The customer is writing in French. Respond in French."
	}
	return "The customer is writing in English. Respond in English."
}

func fallbackMessage(lang Language) string {
	if lang == LanguageFrench {
		return "Désolé, je n'ai pas réussi à finaliser ma réponse. Pouvez-vous reformuler votre demande ?"
	}
	return "Sorry, I was not able to finish working on that. Could you rephrase your request?"
}
