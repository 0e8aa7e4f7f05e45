package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	analyzerTimeout     = 30 * time.Second
	analyzerMaxAttempts = 3
	rateLimitBackoff    = 5 * time.Second
	maxPromptSiteChars  = 2000

	systemPrompt = "Eres un experto en análisis de negocios y prospección de ventas."
)

// ErrRateLimited is returned when every attempt was answered with HTTP 429.
var ErrRateLimited = errors.New("text generation rate limited")

// TextGenerator writes an outreach message for a business.
type TextGenerator interface {
	Analyze(ctx context.Context, businessName, category, websiteText string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// StatusError carries a non-200, non-429 answer from the completion endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error AI (%d): %s", e.Status, e.Body)
}

// Analyzer calls an OpenRouter-compatible chat completion endpoint.
type Analyzer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	// sleep waits between rate-limited attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAnalyzer(apiKey, baseURL, model string) *Analyzer {
	return &Analyzer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: analyzerTimeout},
		sleep:      sleepContext,
	}
}

// Analyze builds the prospecting prompt and returns the generated message.
// HTTP 429 is retried after 5s and then 10s; any other failure is returned
// immediately.
func (a *Analyzer) Analyze(ctx context.Context, businessName, category, websiteText string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(businessName, category, websiteText)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	for attempt := 0; attempt < analyzerMaxAttempts; attempt++ {
		content, err := a.complete(ctx, body)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		if attempt == analyzerMaxAttempts-1 {
			break
		}

		wait := time.Duration(attempt+1) * rateLimitBackoff
		Logger("analyzer").WithField("wait", wait).Warn("Rate limit hit")
		if err := a.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", analyzerMaxAttempts, ErrRateLimited)
}

func (a *Analyzer) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to AI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func buildPrompt(businessName, category, websiteText string) string {
	if !SnippetUsable(websiteText) {
		return fmt.Sprintf(`Actúa como un Visionario Tecnológico de CLAVE.AI.
El negocio "%s" (%s) NO tiene sitio web o presencia digital clara.

Escribe un mensaje corto y potente de WhatsApp para el dueño:
- Inicia con un cumplido genuino sobre "%s".
- NO incluyas links de Google Maps ni links del propio cliente.
- Explica con empatía cómo la falta de una web profesional les hace perder clientes.
- Explica cómo la IA y la automatización de CLAVE.AI captan clientes 24/7.
- Cierra con un llamado a la acción con los links https://claveai.com.mx y https://www.instagram.com/claveai/

Tono profesional, visionario y cercano. Máximo 100 palabras.`, businessName, category, businessName)
	}

	if len(websiteText) > maxPromptSiteChars {
		websiteText = websiteText[:maxPromptSiteChars]
	}
	return fmt.Sprintf(`Actúa como Especialista en Estrategia Digital de CLAVE.AI. Analiza el negocio "%s" (%s).

CONTENIDO WEB (resumen): %s

Escribe un mensaje de contacto por WhatsApp:
- Valida su presencia actual con un detalle concreto de su web.
- NO incluyas links de Google Maps ni links del propio cliente.
- Sugiere una mejora específica basada en IA o automatización.
- Invita a conocer https://claveai.com.mx y https://www.instagram.com/claveai/

Evita sonar como un script de ventas. Sé humano, experto y directo al valor.`, businessName, category, websiteText)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
