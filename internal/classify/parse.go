package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// linePattern matches "N. role" or "N role" response lines.
var linePattern = regexp.MustCompile(`^\s*(\d+)\.?\s*(.+?)\s*$`)

// ParseGroupResponse extracts one label string per paragraph from a group
// response. Lines are matched by paragraph number, so out-of-order answers
// are fine. Paragraphs with no recognized line, an out-of-range number or
// no valid role get the parsing_error sentinel.
func ParseGroupResponse(response string, expected int) []string {
	labels := make(map[int]string, expected)
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > expected {
			continue
		}
		if label := NormalizeLabels(strings.Split(m[2], "/")); label != "" {
			labels[num] = label
		}
	}

	result := make([]string, expected)
	for i := range result {
		if label, ok := labels[i+1]; ok {
			result[i] = label
		} else {
			result[i] = SentinelParsingError
		}
	}
	return result
}

// ParseChunkResponse extracts the label from a single-paragraph response.
// The answer may be a bare role, "role / role", or carry a stray leading
// "1." from a model that numbered anyway.
func ParseChunkResponse(response string) string {
	text := strings.TrimSpace(response)
	if m := linePattern.FindStringSubmatch(text); m != nil {
		if label := NormalizeLabels(strings.Split(m[2], "/")); label != "" {
			return label
		}
	}
	if label := NormalizeLabels(strings.Split(text, "/")); label != "" {
		return label
	}
	return SentinelParsingError
}
