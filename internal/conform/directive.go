package conform

import "encoding/json"

const jsonDirective = "You must respond with valid JSON only. Do not include any prose, explanations, markdown fences, or text outside the JSON.\n" +
	"Your entire response must be directly parseable as JSON."

// BuildJSONDirective returns the instruction appended to the system prompt
// when structured output is requested. A non-nil hint is rendered as
// indented JSON after the base instruction.
func BuildJSONDirective(hint any) string {
	if hint == nil {
		return jsonDirective
	}
	if raw, ok := hint.(json.RawMessage); ok && len(raw) == 0 {
		return jsonDirective
	}

	rendered, err := json.MarshalIndent(hint, "", "  ")
	if err != nil {
		return jsonDirective
	}
	return jsonDirective + "\n\nThe JSON should conform to this structure:\n" + string(rendered)
}
