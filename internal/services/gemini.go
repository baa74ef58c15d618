package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"google.golang.org/api/option"

	"videoscribe/internal/models"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiTranscriber sends audio through the Gemini File API and asks for
// timed spans.
type GeminiTranscriber struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiTranscriber(ctx context.Context, apiKey, modelName string, concurrentReqs int) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", models.ErrEngineUnavailable)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiTranscriber{client: client, model: model, rateChan: rateChan}, nil
}

func (s *GeminiTranscriber) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiTranscriber) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiTranscriber) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*models.Transcription, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer audio.Close()

	mimeType := audioMIMEType(audioPath)
	file, err := s.client.UploadFile(ctx, "", audio, &genai.UploadFileOptions{
		DisplayName: filepath.Base(audioPath),
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upload audio to Gemini: %v", models.ErrNetwork, err)
	}

	// Ensure remote file is cleaned up
	defer s.client.DeleteFile(context.Background(), file.Name)

	// Wait until file is active
	for i := 0; i < 30; i++ {
		current, getErr := s.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return nil, fmt.Errorf("Gemini failed to process uploaded audio file")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return nil, fmt.Errorf("audio file did not become active in time")
	}

	slog.Info("transcribing audio", slog.String("engine", "gemini"), slog.String("language", language))
	resp, err := s.model.GenerateContent(ctx,
		genai.Text(transcriptionPrompt(language)),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini transcription error: %w", err)
	}

	return parseGeminiSpans(extractText(resp)), nil
}

func transcriptionPrompt(language string) string {
	lang := "Chinese"
	if language == "en" {
		lang = "English"
	}
	return fmt.Sprintf(`Transcribe the provided audio verbatim. The speech is mostly %s.
Return ONLY a JSON array of objects {"start": seconds, "end": seconds, "text": "spoken words"} in chronological order.
Do not summarize, translate or add commentary.`, lang)
}

// parseGeminiSpans accepts a JSON array of spans or an object holding one in
// "segments". Anything else is kept as flat text.
func parseGeminiSpans(raw string) *models.Transcription {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if !gjson.Valid(raw) {
		return &models.Transcription{Text: raw}
	}
	doc := gjson.Parse(raw)
	if doc.IsObject() {
		doc = doc.Get("segments")
	}
	if !doc.IsArray() {
		return &models.Transcription{Text: raw}
	}

	result := &models.Transcription{}
	var texts []string
	for _, item := range doc.Array() {
		text := strings.TrimSpace(item.Get("text").String())
		if text == "" {
			continue
		}
		start := item.Get("start").Float()
		end := item.Get("end").Float()
		if end < start {
			end = start
		}
		result.Spans = append(result.Spans, models.Segment{Start: start, End: end, Text: text})
		texts = append(texts, text)
	}
	result.Text = strings.Join(texts, " ")
	return result
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func audioMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
