package chat

import (
	"context"
	"fmt"

	"copbot/internal/models"
	"copbot/internal/translate"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

const (
	// IssueAnswer is shown when the pipeline fails.
	IssueAnswer = "Sorry, I encountered an issue."
	// LoadFailed is reported when the index cannot be opened at start-up.
	LoadFailed = "Could not load the knowledge base. The application cannot start."
)

// Pipeline answers English questions from the documents.
type Pipeline interface {
	Query(ctx context.Context, question string) (*models.PromptResponse, error)
}

type Service struct {
	pipeline   Pipeline
	translator translate.Translator
}

func NewService(pipeline Pipeline, translator translate.Translator) *Service {
	if translator == nil {
		translator = translate.Noop{}
	}
	return &Service{pipeline: pipeline, translator: translator}
}

// EnsureWelcome greets a session that has no history yet.
func (s *Service) EnsureWelcome(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.messages) == 0 {
		sess.messages = append(sess.messages, models.Message{
			Role:    models.RoleAssistant,
			Content: Text(sess.language).Welcome,
		})
	}
}

// QuickAction sends the label of button index in the session language
// exactly as if the user had typed it.
func (s *Service) QuickAction(ctx context.Context, sess *Session, index int) (models.Message, error) {
	buttons := Text(sess.Language()).Buttons
	if index < 0 || index >= len(buttons) {
		return models.Message{}, fmt.Errorf("quick action %d out of range", index)
	}
	return s.Ask(ctx, sess, buttons[index]), nil
}

// Ask records the user's text, answers it and records the answer. Tamil
// questions are translated to English for the pipeline and the answer
// back to Tamil. Failures become the assistant's reply.
func (s *Service) Ask(ctx context.Context, sess *Session, text string) models.Message {
	sess.append(models.Message{Role: models.RoleUser, Content: text})
	reply := models.Message{Role: models.RoleAssistant, Content: s.answer(ctx, sess.Language(), text)}
	sess.append(reply)
	return reply
}

func (s *Service) answer(ctx context.Context, lang language.Tag, text string) string {
	tamil := isTamil(lang)

	question := text
	if tamil {
		var err error
		if question, err = s.translator.Translate(ctx, text, language.English); err != nil {
			log.Warn().Err(err).Msg("Translating question failed")
			return translationError(err)
		}
	}

	resp, err := s.pipeline.Query(ctx, question)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Query failed")
		return IssueAnswer
	}
	log.Info().Str("source", resp.Source).Int("chunks", len(resp.Chunks)).Msg("Answered question")

	if !tamil {
		return resp.Content
	}
	answer, err := s.translator.Translate(ctx, resp.Content, language.Tamil)
	if err != nil {
		log.Warn().Err(err).Msg("Translating answer failed")
		return translationError(err)
	}
	return answer
}

func translationError(err error) string {
	return "Translation error: " + err.Error()
}
