package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// ClientConfig configures the OpenAI-compatible vision client.
type ClientConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultClientConfig returns defaults; BaseURL and APIKey must be supplied.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 60 * time.Second,
	}
}

// Low temperature: the answer must be a deterministic structural report,
// not creative writing.
const analysisTemperature = 0.1

const analysisPrompt = `You are looking at a screenshot of a web page.
Find the date or date-range filter control, if any.
Respond with ONLY a JSON object:
{
  "found": true/false,
  "input_mode": "input" or "click",
  "is_range": true/false,
  "has_confirm": true/false,
  "css_hints": ["..."],
  "instruction": "one line describing how to set a date range with it",
  "reason": "only when found is false or uncertain"
}
"input" means dates can be typed into the control; "click" means a calendar
panel must be operated. css_hints are selector fragments you can infer from
visible styling (e.g. element-ui, layui, ant-design markers).`

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI-compatible chat-completions endpoint with the
// screenshot attached.
type Client struct {
	config ClientConfig
	http   *http.Client
	log    *logger.Logger
}

// NewClient creates a vision client.
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		log:    log.WithComponent("vision").WithLayer(3),
	}
}

// AnalyzePicker implements Analyzer.
func (c *Client) AnalyzePicker(ctx context.Context, screenshotPNG []byte) (Report, error) {
	if len(screenshotPNG) == 0 {
		return Report{}, errors.NewVisionError("", "empty screenshot", nil)
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(screenshotPNG)
	payload := chatRequest{
		Model:       c.config.Model,
		Temperature: analysisTemperature,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: analysisPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Report{}, errors.NewVisionError("", "encode request", err)
	}

	endpoint := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Report{}, errors.NewVisionError(endpoint, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, errors.NewVisionError(endpoint, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, errors.NewVisionError(endpoint, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Report{}, errors.NewVisionError(endpoint,
			fmt.Sprintf("model endpoint returned %d", resp.StatusCode), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Report{}, errors.NewVisionError(endpoint, "decode response", err)
	}
	if len(decoded.Choices) == 0 {
		return Report{}, errors.NewVisionError(endpoint, "empty completion", nil)
	}

	content := extractJSONObject(decoded.Choices[0].Message.Content)
	var report Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return Report{}, errors.NewVisionError(endpoint, "unparseable report", err)
	}

	c.log.Infof("vision report: found=%v mode=%s range=%v", report.Found, report.InputMode, report.IsRange)
	return report, nil
}
