package llm

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAMLResponse extracts and decodes a YAML document from a chat
// completion's text. Models are prompted to answer in YAML but in
// practice wrap it in a fenced ```yaml block, a bare fenced block, or
// return plain YAML with no fence at all — all three are tried in order.
func ParseYAMLResponse(text string, out any) error {
	content := extractYAMLBlock(text)
	return yaml.Unmarshal([]byte(content), out)
}

func extractYAMLBlock(text string) string {
	if idx := strings.Index(text, "```yaml"); idx != -1 {
		rest := text[idx+len("```yaml"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+len("```"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	return strings.TrimSpace(text)
}
