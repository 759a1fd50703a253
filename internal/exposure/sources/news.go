package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/envhealth/exposure-api/internal/exposure"
)

const newsPrompt = `Find the 3 most recent and relevant news items related to health and environmental risks in %s.
For each news item, provide a clear title, a brief description, the source (if known), a link (if known), and the date (if known).
Only include news from the past month. Focus on local health risks, environmental issues, and public health concerns.
If there are no recent relevant news items, return an empty array.`

const newsSystemMessage = `You are a helpful assistant that provides current news about health and environmental risks.
Respond with a JSON object containing an "articles" array. Each item must have: title, description, source, link, and pub_date fields.`

// NewsSource fetches local health news through the OpenAI chat completions
// API with a JSON response format. It implements exposure.NewsFetcher rather
// than exposure.Source because news carries its own freshness window.
type NewsSource struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewNewsSource(client *http.Client, apiKey, model string) *NewsSource {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &NewsSource{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1/chat/completions",
		client:  client,
		circuit: newBreaker("news"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FetchNews implements exposure.NewsFetcher. The location name, when known,
// anchors the query; otherwise the raw coordinate is used.
func (s *NewsSource) FetchNews(ctx context.Context, req exposure.Request, location string) (exposure.NewsRecord, error) {
	if s.apiKey == "" {
		return exposure.NewsRecord{}, fmt.Errorf("openai %w", errMissingKey)
	}

	if location == "" {
		location = fmt.Sprintf("%f,%f", req.Lat, req.Lon)
	}

	body := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: newsSystemMessage},
			{Role: "user", Content: fmt.Sprintf(newsPrompt, location)},
		},
	}
	body.ResponseFormat.Type = "json_object"

	encoded, err := json.Marshal(body)
	if err != nil {
		return exposure.NewsRecord{}, err
	}

	buildRequest := func() (*http.Request, error) {
		httpReq, err := http.NewRequest(http.MethodPost, s.baseURL, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
		return httpReq, nil
	}

	resp, err := doRequest(ctx, s.client, s.circuit, buildRequest)
	if err != nil {
		return exposure.NewsRecord{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return exposure.NewsRecord{}, err
	}

	var completion chatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return exposure.NewsRecord{}, fmt.Errorf("decoding completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return exposure.NewsRecord{}, fmt.Errorf("completion has no choices")
	}

	var content struct {
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Source      string `json:"source"`
			Link        string `json:"link"`
			PubDate     string `json:"pub_date"`
		} `json:"articles"`
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &content); err != nil {
		return exposure.NewsRecord{}, fmt.Errorf("decoding articles: %w", err)
	}

	articles := make([]exposure.Article, 0, len(content.Articles))
	for _, a := range content.Articles {
		articles = append(articles, exposure.Article{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source,
			Link:        a.Link,
			PubDate:     a.PubDate,
		})
	}

	return exposure.NewsRecord{
		Source:    "openai",
		FetchedAt: time.Now().UTC(),
		Articles:  articles,
	}, nil
}
