// internal/llm/drafter.go
package llm

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"google.golang.org/genai"
)

// Turn is one entry in a drafting conversation.
type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Draft is the structured outcome of a drafting exchange. Action is
// either "chat" (keep talking, Reply carries the message) or "publish"
// (Title and Content carry a finished article).
type Draft struct {
	Action  string `json:"action"`
	Reply   string `json:"reply"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ReadyToPublish reports whether the assistant decided the article is
// final.
func (d Draft) ReadyToPublish() bool {
	return d.Action == "publish" && d.Title != "" && d.Content != ""
}

const drafterSystemPrompt = `You are an editorial assistant helping draft news articles for a company website.
Talk with the user to refine a topic into a finished article. Reply in the user's language.
Always answer with a single JSON object:
{"action": "chat", "reply": "<your next message to the user>", "title": "", "content": ""}
When the user confirms the article is final, answer instead with:
{"action": "publish", "reply": "<short confirmation>", "title": "<article title>", "content": "<article body as HTML paragraphs>"}`

// Drafter turns a chat history plus the latest user message into the
// next assistant step.
type Drafter struct {
	client *Client
	model  string
}

// NewDrafter builds a Drafter on the shared client.
func NewDrafter(client *Client, model string) *Drafter {
	return &Drafter{client: client, model: model}
}

// Propose advances the conversation by one exchange.
func (d *Drafter) Propose(ctx context.Context, history []Turn, userText string) (Draft, error) {
	var contents []*genai.Content
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	raw, err := d.client.Generate(ctx, d.model, contents, drafterSystemPrompt, true)
	if err != nil {
		return Draft{}, fmt.Errorf("drafting exchange failed: %w", err)
	}

	draft, err := parseDraft(raw)
	if err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// parseDraft decodes the assistant's JSON reply, tolerating markdown
// code fences some models wrap around JSON output.
func parseDraft(raw string) (Draft, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var draft Draft
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
		return Draft{}, fmt.Errorf("unparseable drafting reply: %w", err)
	}
	if draft.Action != "chat" && draft.Action != "publish" {
		return Draft{}, fmt.Errorf("drafting reply has unknown action %q", draft.Action)
	}
	return draft, nil
}
