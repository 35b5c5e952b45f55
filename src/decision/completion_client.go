package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// CompletionProposer drives an OpenAI-compatible chat-completions endpoint.
// The model replies with free text and, when it wants to trade, a fenced JSON
// block of tool invocations extracted by parseToolInvocations.
type CompletionProposer struct {
	http  *resty.Client
	model string
}

func NewCompletionProposer(model string) *CompletionProposer {
	config := GetConfig()

	if model == "" {
		model = config.DefaultModel
	}

	httpClient := resty.New().
		SetBaseURL(config.CompletionBaseURL).
		SetTimeout(time.Duration(config.TimeoutSec)*time.Second).
		SetHeader("Authorization", "Bearer "+config.CompletionAPIKey)

	return &CompletionProposer{http: httpClient, model: model}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = `You are a disciplined futures trading assistant managing a leveraged USDT-M account.
Review the provided market data, account state, open positions and recent history, then decide what to do this cycle.
Explain your reasoning briefly. If you want to trade, end your reply with a fenced json block containing a list of calls, e.g.:
` + "```json" + `
[{"action":"open_long","symbol":"BTC_USDT","margin_usd":100,"leverage":5},
 {"action":"close","symbol":"ETH_USDT","percent":100}]
` + "```" + `
Doing nothing is always acceptable; reply without a json block to hold.`

func (p *CompletionProposer) Propose(ctx context.Context, dctx *Context) (*Proposal, error) {
	payload, err := json.Marshal(dctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision context: %w", err)
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	}

	var parsed chatResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("completion service error: %s", msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion service returned no choices")
	}

	text := parsed.Choices[0].Message.Content
	invocations := parseToolInvocations(text)

	logger.WithFields(map[string]interface{}{
		"model":      p.model,
		"tool_calls": len(invocations),
	}).Info("proposal received")

	return &Proposal{Text: text, ToolInvocations: invocations}, nil
}

var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// parseToolInvocations extracts trade calls from the reply's fenced json
// block. Malformed blocks yield no invocations rather than an error: a
// proposal that cannot be parsed is a hold.
func parseToolInvocations(text string) []ToolInvocation {
	match := jsonBlockRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	raw := strings.TrimSpace(match[1])

	var invocations []ToolInvocation
	if err := json.Unmarshal([]byte(raw), &invocations); err != nil {
		// Accept a single object as well as a list.
		var one ToolInvocation
		if err2 := json.Unmarshal([]byte(raw), &one); err2 != nil {
			logger.WithError(err).Warn("unparseable tool invocation block, treating as hold")
			return nil
		}
		invocations = []ToolInvocation{one}
	}

	valid := invocations[:0]
	for _, inv := range invocations {
		switch inv.Action {
		case ActionOpenLong, ActionOpenShort, ActionClose:
			if inv.Symbol != "" {
				valid = append(valid, inv)
			}
		default:
			logger.WithField("action", inv.Action).Warn("unknown tool invocation action dropped")
		}
	}
	return valid
}
