package knowledge

import "strings"

// GenerateChunks splits text into sentence sized chunks on '.', trimming
// whitespace and dropping empty pieces. Order is preserved.
func GenerateChunks(input string) []string {
	parts := strings.Split(strings.TrimSpace(input), ".")

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			chunks = append(chunks, s)
		}
	}

	return chunks
}
