package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"copbot/internal/config"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// GoogleTranslator calls the Cloud Translation v2 REST API.
type GoogleTranslator struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewGoogleTranslator(cfg *config.TranslatorConfig) *GoogleTranslator {
	return &GoogleTranslator{
		baseURL: cfg.BaseURL,
		key:     cfg.Key,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GoogleTranslator) Translate(ctx context.Context, text string, target language.Tag) (string, error) {
	code, err := Code(target)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("target", code)
	form.Set("format", "text")
	form.Set("key", g.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read translation response: %w", err)
	}

	var out googleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode translation response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("translation api: %d %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation api: status %d", resp.StatusCode)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translation api returned no translations")
	}

	tr := out.Data.Translations[0]
	log.Debug().Str("from", tr.DetectedSourceLanguage).Str("to", code).Msg("Translated text")
	return html.UnescapeString(tr.TranslatedText), nil
}
