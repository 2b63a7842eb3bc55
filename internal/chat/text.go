package chat

import "golang.org/x/text/language"

// LanguageLabel heads the language switch in both UIs.
const LanguageLabel = "Language / மொழி"

// UIText holds the user facing strings for one language.
type UIText struct {
	Title       string
	Welcome     string
	Placeholder string
	Buttons     []string
	Disclaimer  string
	// Name is how the language is offered in the language switch.
	Name string
}

var uiText = map[string]UIText{
	"en": {
		Title:       "Police Assistance Cell",
		Welcome:     "Welcome! I am the Thoothukudi District Police Assistance bot. How can I help you?",
		Placeholder: "Type your question here...",
		Buttons:     []string{"Emergency contacts", "Police stations", "How to file a complaint?", "What is an FIR?", "About IPC sections"},
		Disclaimer:  "This information is for general guidance only. It is not a substitute for legal advice. Please consult a legal professional for specific matters. This is an initiative by the Thoothukudi District Police.",
		Name:        "English",
	},
	"ta": {
		Title:       "காவல்துறை உதவி செயலி",
		Welcome:     "வணக்கம்! தூத்துக்குடி மாவட்ட காவல்துறை உதவி செயலிக்கு உங்களை வரவேற்கிறோம். நான் உங்களுக்கு எப்படி உதவ முடியும்?",
		Placeholder: "உங்கள் கேள்வியை இங்கு தட்டச்சு செய்யவும்...",
		Buttons:     []string{"அவசர உதவி எண்கள்", "காவல் நிலையங்கள்", "புகார் அளிப்பது எப்படி?", "FIR என்றால் என்ன?", "IPC திருட்டு பற்றி"},
		Disclaimer:  "இந்தத் தகவல்கள் பொதுவான வழிகாட்டுதலுக்காக மட்டுமே. இது சட்ட ஆலோசனைக்கு மாற்றாகாது. குறிப்பிட்ட வழக்குகளுக்கு சட்ட ஆலோசகரை அணுகவும். இது தூத்துக்குடி மாவட்ட காவல்துறையின் ஒரு முன்னோட்டச் செயலி.",
		Name:        "Tamil",
	},
}

// Text returns the strings for lang, falling back to English.
func Text(lang language.Tag) UIText {
	if isTamil(lang) {
		return uiText["ta"]
	}
	return uiText["en"]
}

func isTamil(lang language.Tag) bool {
	base, _ := lang.Base()
	return base.String() == "ta"
}
