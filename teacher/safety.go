package teacher

import (
	"strings"
	"unicode/utf8"
)

// PostValidation summarizes the cheap content checks applied to every
// teacher response before it is written out.
type PostValidation struct {
	HasContent                  bool `json:"has_content"`
	MentionsSafetyOrLoadControl bool `json:"mentions_safety_or_load_control"`
	IsValid                     bool `json:"is_valid"`
}

var safetyTokens = []string{"safe", "safety", "injur", "contraind", "rir"}

// PostValidate checks that a response carries substantive content and
// whether it talks about safety or load control at all. Only the content
// check gates validity.
func PostValidate(responseText string) PostValidation {
	text := strings.TrimSpace(responseText)
	hasContent := utf8.RuneCountInString(text) > 40
	lowered := strings.ToLower(text)
	mentions := false
	for _, token := range safetyTokens {
		if strings.Contains(lowered, token) {
			mentions = true
			break
		}
	}
	return PostValidation{
		HasContent:                  hasContent,
		MentionsSafetyOrLoadControl: mentions,
		IsValid:                     hasContent,
	}
}

// DetectSafetyFlags scans a response for coaching language the pipeline
// must not distill into training data.
func DetectSafetyFlags(responseText string) []string {
	flags := []string{}
	lowered := strings.ToLower(responseText)
	if strings.Contains(lowered, "max out") || strings.Contains(lowered, "to failure every set") {
		flags = append(flags, "potential_overexertion_language")
	}
	if strings.Contains(lowered, "ignore pain") {
		flags = append(flags, "unsafe_pain_instruction")
	}
	return flags
}
