package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const evolutionTimeout = 30 * time.Second

// WhatsAppChecker tells whether a phone has a WhatsApp account.
type WhatsAppChecker interface {
	HasWhatsApp(ctx context.Context, phone string) (bool, error)
}

// MessageSender delivers one text message to a phone.
type MessageSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// EvolutionClient talks to an Evolution API instance.
type EvolutionClient struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

func NewEvolutionClient(baseURL, apiKey, instance string) *EvolutionClient {
	return &EvolutionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		instance:   instance,
		httpClient: &http.Client{Timeout: evolutionTimeout},
	}
}

type whatsappNumber struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
	Number string `json:"number"`
}

// HasWhatsApp asks the instance whether phone is registered.
func (e *EvolutionClient) HasWhatsApp(ctx context.Context, phone string) (bool, error) {
	resp, err := e.post(ctx, "/chat/whatsappNumbers/", map[string]interface{}{
		"numbers": []string{phone},
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("whatsapp check returned status %d", resp.StatusCode)
	}

	var numbers []whatsappNumber
	if err := json.NewDecoder(resp.Body).Decode(&numbers); err != nil {
		return false, fmt.Errorf("decoding whatsapp check: %w", err)
	}
	for _, n := range numbers {
		if n.Exists {
			return true, nil
		}
	}
	return false, nil
}

// SendText sends a plain text message. 200 and 201 both mean accepted.
func (e *EvolutionClient) SendText(ctx context.Context, phone, text string) error {
	resp, err := e.post(ctx, "/message/sendText/", map[string]string{
		"number": phone,
		"text":   text,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send text returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (e *EvolutionClient) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path+e.instance, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)

	return e.httpClient.Do(req)
}
