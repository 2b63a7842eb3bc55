package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"copbot/internal/config"
	"copbot/internal/llmservice"
	"copbot/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Supported lists the languages the assistant converses in.
var Supported = []language.Tag{language.English, language.Tamil}

// Translator converts text into the target language. The source
// language is detected.
type Translator interface {
	Translate(ctx context.Context, text string, target language.Tag) (string, error)
}

// New picks the translator named by cfg.Provider. gen is only used by the
// llm provider. A google provider without a key yields an Unavailable
// translator so that English conversations still work.
func New(cfg *config.TranslatorConfig, gen llmservice.Generator) (Translator, error) {
	switch cfg.Provider {
	case "google":
		if cfg.Key == "" {
			err := fmt.Errorf("google translator requires an API key (set %s)", cfg.KeyEnv)
			log.Warn().Err(err).Msg("Translation disabled")
			return Unavailable{Err: err}, nil
		}
		return NewGoogleTranslator(cfg), nil
	case "llm":
		if gen == nil {
			return nil, errors.New("llm translator requires a chat model")
		}
		return NewLLMTranslator(gen), nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown translator provider %q", cfg.Provider)
	}
}

// Code returns the two letter code of a supported tag, e.g. "ta".
func Code(tag language.Tag) (string, error) {
	base, _ := tag.Base()
	for _, s := range Supported {
		if sb, _ := s.Base(); sb == base {
			return base.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, tag)
}

// Parse maps a language code such as "en" or "ta-IN" to a supported tag.
func Parse(code string) (language.Tag, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return language.Und, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	if _, err := Code(tag); err != nil {
		return language.Und, err
	}
	base, _ := tag.Base()
	return language.Make(base.String()), nil
}

// Noop returns the text unchanged.
type Noop struct{}

func (Noop) Translate(_ context.Context, text string, target language.Tag) (string, error) {
	if _, err := Code(target); err != nil {
		return "", err
	}
	return text, nil
}

// Unavailable fails every translation with Err.
type Unavailable struct {
	Err error
}

func (u Unavailable) Translate(context.Context, string, language.Tag) (string, error) {
	return "", u.Err
}

// LLMTranslator translates through the chat model.
type LLMTranslator struct {
	gen llmservice.Generator
}

func NewLLMTranslator(gen llmservice.Generator) *LLMTranslator {
	return &LLMTranslator{gen: gen}
}

func (t *LLMTranslator) Translate(ctx context.Context, text string, target language.Tag) (string, error) {
	if _, err := Code(target); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	name := display.English.Languages().Name(target)
	out, err := t.gen.Generate(ctx, "", fmt.Sprintf(models.TranslatePromptTemplate, name, text))
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}
