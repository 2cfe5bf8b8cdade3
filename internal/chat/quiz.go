// ABOUTME: Five-question multiple choice quizzes generated as structured JSON
// ABOUTME: Questions with an out-of-range answer index are dropped
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// QuizQuestion is one multiple choice question
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

// Correct reports whether choice is the right option
func (q QuizQuestion) Correct(choice int) bool {
	return choice == q.Answer
}

var quizSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString, Description: "Gaafficha Afaan Oromoon."},
			"options": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Filannoo deebii 4.",
			},
			"answer": {Type: genai.TypeInteger, Description: "Index deebii sirrii (0-3)."},
		},
		PropertyOrdering: []string{"question", "options", "answer"},
		Required:         []string{"question", "options", "answer"},
	},
}

// GenerateQuiz asks for a short quiz about topic
func (c *Client) GenerateQuiz(ctx context.Context, topic string) (questions []QuizQuestion, err error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrEmptyPrompt
	}
	started := time.Now()
	defer func() { c.metrics.ChatRequest("quiz", started, err) }()

	prompt := fmt.Sprintf("Qorumsa gabaabaa gaaffilee 5 qabu waa'ee %s Afaan Oromoon qopheessi. Gaaffilee fi deebiiwwan JSON format qulqulluu ta'een kenni.", topic)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   quizSchema,
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.Quiz, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		c.logger.Errorw("Quiz request failed", "topic", topic, "error", err)
		return nil, friendly(err)
	}
	return parseQuiz(resp.Text())
}

func parseQuiz(text string) ([]QuizQuestion, error) {
	if strings.TrimSpace(text) == "" {
		text = "[]"
	}
	var raw []QuizQuestion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quiz: %w", err)
	}

	questions := make([]QuizQuestion, 0, len(raw))
	for _, q := range raw {
		if q.Question == "" || q.Answer < 0 || q.Answer >= len(q.Options) {
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}
