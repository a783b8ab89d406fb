package gemini

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

var systemInstructions = map[types.Mode]string{
	types.ModeApplianceFixer: "You are an expert appliance repair technician. Analyze the image and the user's question. " +
		"Identify components, potential issues, and provide step-by-step guidance. " +
		"Return structured JSON with 'analysis', 'speech' (what you will say), and 'overlay' (visual markers for the camera feed).",
	types.ModeHomeworkTutor: "You are a patient and brilliant tutor. Analyze the math or physics problem in the image. " +
		"Explain the concepts clearly and solve it step-by-step. " +
		"Return structured JSON with 'analysis', 'speech', and 'overlay' (to point out specific parts of the equation or diagram).",
	types.ModeCookingAssistant: "You are a world-class chef. Identify the ingredients in the image and suggest recipes or cooking tips. " +
		"Return structured JSON with 'analysis', 'speech', and 'overlay' (to highlight specific ingredients or tools).",
	types.ModeGeneral: "You are a helpful multimodal AI assistant. Analyze the scene and respond to the user's query. " +
		"Return structured JSON with 'analysis', 'speech', and 'overlay'.",
}

// SystemInstruction returns the persona text for mode, falling back to the
// general assistant.
func SystemInstruction(mode types.Mode) string {
	if s, ok := systemInstructions[mode]; ok {
		return s
	}
	return systemInstructions[types.ModeGeneral]
}

func buildContents(req types.AnalysisRequest) ([]*genai.Content, error) {
	image, err := types.ParseDataURI(req.ImageDataURI)
	if err != nil {
		return nil, core.NewInvalidRequestErrorWithParam(err.Error(), "image")
	}
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(image.Data, image.MIMEType),
		genai.NewPartFromText(prompt),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func buildPrompt(req types.AnalysisRequest) (string, error) {
	history := req.History
	if history == nil {
		history = []types.HistoryEntry{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("gemini: encode history: %w", err)
	}
	return fmt.Sprintf("User says: \"%s\"\n\nCurrent Mode: %s\n\nPrevious context: %s", req.Speech, req.Mode, encoded), nil
}

// searchFormatInstruction replaces the response schema when Google Search is
// on: the API rejects tool use combined with a JSON response MIME type.
const searchFormatInstruction = " Reply with a single JSON object and nothing else: " +
	`{"analysis": string, "speech": string, "overlay": [{"type": "highlight"|"circle"|"arrow"|"label", ` +
	`"x": number, "y": number, "width": number, "height": number, "label": string, "color": string}]}. ` +
	"Coordinates are percentages (0-100) of the image. 'analysis' and 'speech' are required."

func (p *Provider) buildConfig(mode types.Mode) *genai.GenerateContentConfig {
	if p.googleSearch {
		return &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemInstruction(mode)+searchFormatInstruction, genai.RoleUser),
			Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(mode), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	}
}

func responseSchema() *genai.Schema {
	number := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeNumber, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"analysis": {Type: genai.TypeString},
			"speech":   {Type: genai.TypeString},
			"overlay": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"type": {
							Type: genai.TypeString,
							Enum: []string{
								string(types.OverlayHighlight),
								string(types.OverlayArrow),
								string(types.OverlayLabel),
								string(types.OverlayCircle),
							},
						},
						"x":      number("Normalized X coordinate (0-100)"),
						"y":      number("Normalized Y coordinate (0-100)"),
						"width":  number("Normalized width (0-100)"),
						"height": number("Normalized height (0-100)"),
						"label":  {Type: genai.TypeString},
						"color":  {Type: genai.TypeString},
					},
				},
			},
		},
		Required: []string{"analysis", "speech"},
	}
}
