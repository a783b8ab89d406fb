package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

var errEmptyReply = errors.New("gemini: empty reply")

// parseResult decodes the JSON text of the first candidate. A reply missing
// analysis or speech, or carrying an unknown overlay type, is rejected.
func parseResult(resp *genai.GenerateContentResponse) (*types.AnalysisResult, error) {
	if resp == nil {
		return nil, errEmptyReply
	}
	return decodeResultText(resp.Text())
}

func decodeResultText(text string) (*types.AnalysisResult, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, errEmptyReply
	}
	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("gemini: decode reply: %w", err)
	}
	if strings.TrimSpace(result.Analysis) == "" {
		return nil, errors.New("gemini: reply is missing analysis")
	}
	if strings.TrimSpace(result.Speech) == "" {
		return nil, errors.New("gemini: reply is missing speech")
	}
	for i, o := range result.Overlay {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("gemini: overlay[%d]: %w", i, err)
		}
	}
	return &result, nil
}

// stripCodeFence removes the ```json fence models wrap around JSON when no
// response MIME type is enforced.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
