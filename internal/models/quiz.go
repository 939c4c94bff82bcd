package models

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MaxQuizTitleLength    = 500
	MaxQuestionTextLength = 2000
	MaxOptionLength       = 500
	MaxImagePromptLength  = 2000
)

var (
	ErrNoQuestions       = errors.New("quiz has no questions")
	ErrBadOptionCount    = errors.New("question must have exactly 2 or 4 options")
	ErrBadAnswerIndex    = errors.New("answer index out of range")
	ErrMissingQuizFields = errors.New("quiz is missing required fields")
)

type Question struct {
	ID          int      `json:"id"`
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

type Quiz struct {
	Title     string     `json:"quiz_title"`
	Questions []Question `json:"questions"`
}

// PublicQuestion is the player-facing view with the answer key stripped.
type PublicQuestion struct {
	ID       int      `json:"id"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	ImageURL string   `json:"image_url,omitempty"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		ImageURL: q.ImageURL,
	}
}

// Validate enforces the structural invariants every quiz must satisfy before
// a room is ever created with it: a non-empty question list, exactly 2 or 4
// options per question, and an in-range answer index.
func (qz *Quiz) Validate() error {
	if qz == nil || len(qz.Questions) == 0 {
		return ErrNoQuestions
	}
	for _, q := range qz.Questions {
		if q.Text == "" || len(q.Options) == 0 {
			return ErrMissingQuizFields
		}
		if len(q.Options) != 2 && len(q.Options) != 4 {
			return ErrBadOptionCount
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return ErrBadAnswerIndex
		}
	}
	return nil
}

var (
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// SanitizeText strips HTML tags and control characters from generated text.
func SanitizeText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = controlCharRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func clamp(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// Sanitize cleans every user-visible text field in place. LLM output is
// untrusted; this runs after validation and before the quiz is stored.
func (qz *Quiz) Sanitize() {
	qz.Title = clamp(SanitizeText(qz.Title), MaxQuizTitleLength)
	for i := range qz.Questions {
		q := &qz.Questions[i]
		q.Text = clamp(SanitizeText(q.Text), MaxQuestionTextLength)
		for j, opt := range q.Options {
			q.Options[j] = clamp(SanitizeText(opt), MaxOptionLength)
		}
		q.ImagePrompt = clamp(SanitizeText(q.ImagePrompt), MaxImagePromptLength)
	}
}
