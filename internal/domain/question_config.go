package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type QuestionType string

const (
	QuestionOpenEnded      QuestionType = "open_ended"
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionRating         QuestionType = "rating"
	QuestionWordCloud      QuestionType = "word_cloud"
)

// FreeText reports whether responses to this type carry free text that is
// eligible for NLP enrichment.
func (t QuestionType) FreeText() bool {
	return t == QuestionOpenEnded || t == QuestionWordCloud
}

// QuestionConfig is the per-type configuration variant. Each variant carries
// only the fields its type needs and is validated at the boundary before it
// reaches the state machine or the response pipeline.
type QuestionConfig interface {
	Validate() error
	// ValidateValue checks a submitted response value against the config.
	ValidateValue(value string) error
	// AnalysisOptions returns the enabled enrichments. Non-text types
	// always return the zero value.
	AnalysisOptions() AnalysisOptions
}

type OpenEndedConfig struct {
	MaxLength       int  `json:"maxLength,omitempty"`
	EnableSentiment bool `json:"enableSentiment,omitempty"`
	EnableEmotion   bool `json:"enableEmotion,omitempty"`
	EnableKeywords  bool `json:"enableKeywords,omitempty"`
}

func (c OpenEndedConfig) Validate() error {
	if c.MaxLength < 0 {
		return fmt.Errorf("maxLength must not be negative")
	}
	return nil
}

func (c OpenEndedConfig) ValidateValue(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value must not be empty")
	}
	if c.MaxLength > 0 && len(value) > c.MaxLength {
		return fmt.Errorf("value exceeds maximum length %d", c.MaxLength)
	}
	return nil
}

func (c OpenEndedConfig) AnalysisOptions() AnalysisOptions {
	return AnalysisOptions{Sentiment: c.EnableSentiment, Emotion: c.EnableEmotion, Keywords: c.EnableKeywords}
}

type YesNoConfig struct {
	YesLabel string `json:"yesLabel,omitempty"`
	NoLabel  string `json:"noLabel,omitempty"`
}

func (c YesNoConfig) Validate() error { return nil }

func (c YesNoConfig) ValidateValue(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "no":
		return nil
	}
	return fmt.Errorf("value must be yes or no")
}

func (c YesNoConfig) AnalysisOptions() AnalysisOptions { return AnalysisOptions{} }

type MultipleChoiceConfig struct {
	Choices       []string `json:"choices"`
	AllowMultiple bool     `json:"allowMultiple,omitempty"`
}

func (c MultipleChoiceConfig) Validate() error {
	if len(c.Choices) < 2 {
		return fmt.Errorf("at least two choices required")
	}
	seen := make(map[string]struct{}, len(c.Choices))
	for _, choice := range c.Choices {
		if strings.TrimSpace(choice) == "" {
			return fmt.Errorf("choices must not be empty")
		}
		if _, dup := seen[choice]; dup {
			return fmt.Errorf("duplicate choice %q", choice)
		}
		seen[choice] = struct{}{}
	}
	return nil
}

func (c MultipleChoiceConfig) ValidateValue(value string) error {
	selected := []string{value}
	if c.AllowMultiple {
		selected = strings.Split(value, ",")
	}
	for _, s := range selected {
		if !c.hasChoice(strings.TrimSpace(s)) {
			return fmt.Errorf("value %q is not a configured choice", s)
		}
	}
	return nil
}

func (c MultipleChoiceConfig) hasChoice(value string) bool {
	for _, choice := range c.Choices {
		if choice == value {
			return true
		}
	}
	return false
}

func (c MultipleChoiceConfig) AnalysisOptions() AnalysisOptions { return AnalysisOptions{} }

type RatingConfig struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (c RatingConfig) Validate() error {
	if c.Min >= c.Max {
		return fmt.Errorf("min must be below max")
	}
	return nil
}

func (c RatingConfig) ValidateValue(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("value must be an integer rating")
	}
	if n < c.Min || n > c.Max {
		return fmt.Errorf("rating must be between %d and %d", c.Min, c.Max)
	}
	return nil
}

func (c RatingConfig) AnalysisOptions() AnalysisOptions { return AnalysisOptions{} }

type WordCloudConfig struct {
	MaxWords        int  `json:"maxWords,omitempty"`
	EnableSentiment bool `json:"enableSentiment,omitempty"`
	EnableKeywords  bool `json:"enableKeywords,omitempty"`
}

func (c WordCloudConfig) Validate() error {
	if c.MaxWords < 0 {
		return fmt.Errorf("maxWords must not be negative")
	}
	return nil
}

func (c WordCloudConfig) ValidateValue(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value must not be empty")
	}
	if c.MaxWords > 0 && len(strings.Fields(value)) > c.MaxWords {
		return fmt.Errorf("value exceeds maximum of %d words", c.MaxWords)
	}
	return nil
}

func (c WordCloudConfig) AnalysisOptions() AnalysisOptions {
	return AnalysisOptions{Sentiment: c.EnableSentiment, Keywords: c.EnableKeywords}
}

// DecodeQuestionConfig parses and validates the raw config payload for the
// given question type.
func DecodeQuestionConfig(t QuestionType, raw []byte) (QuestionConfig, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var (
		config QuestionConfig
		err    error
	)
	switch t {
	case QuestionOpenEnded:
		config, err = decodeConfig[OpenEndedConfig](raw)
	case QuestionYesNo:
		config, err = decodeConfig[YesNoConfig](raw)
	case QuestionMultipleChoice:
		config, err = decodeConfig[MultipleChoiceConfig](raw)
	case QuestionRating:
		config, err = decodeConfig[RatingConfig](raw)
	case QuestionWordCloud:
		config, err = decodeConfig[WordCloudConfig](raw)
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", t, err)
	}
	return config, nil
}

func decodeConfig[C QuestionConfig](raw []byte) (QuestionConfig, error) {
	var c C
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return c, nil
}
