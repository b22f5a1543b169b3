package auxiliary

import "strings"

// classifierSystemPrompt keeps the hidden session terse and tool-free.
const classifierSystemPrompt = `You are a routing helper embedded in a chat client.
You answer classification questions about the user's messages.
You MUST not call any tool.
Reply with exactly what is asked for, without explanations or preamble.
Respond quickly.`

// cleanReply strips the markdown fences and quotes models like to wrap
// short answers in.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the info string ("json", "text", ...)
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return s
}
