package classify

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as a discourse analyst for every request.
const SystemPrompt = "You are an experienced language analyst and editor. " +
	"Your task is to classify the given text paragraphs by their discourse role."

// labelDescription returns the one-line description for a role. Topic-bound
// roles embed the document topic so the model judges relevance against it.
func labelDescription(label, topic string) string {
	switch label {
	case LabelTopicDevelopment:
		return fmt.Sprintf("the paragraph expands, develops or continues the main topic: '%s'", topic)
	case LabelExample:
		return fmt.Sprintf("the paragraph illustrates the topic '%s' with a concrete case, analogue or everyday situation", topic)
	case LabelDigression:
		return fmt.Sprintf("a substantive departure from the topic '%s' offering a cultural, philosophical or emotional reflection", topic)
	case LabelKeyThesis:
		return fmt.Sprintf("a short formulation of the central idea or main conclusion on the topic '%s', usually terse and assertive", topic)
	case LabelNoise:
		return fmt.Sprintf("the paragraph is unrelated to the topic '%s' and adds no value to the discussion", topic)
	case LabelMetaphor:
		return "a figurative expression, comparison or allegory"
	case LabelHumor:
		return "elements meant to amuse or to provoke critical reflection through irony"
	case LabelTransition:
		return "a phrase or sentence bridging parts of the text"
	case LabelTopicShift:
		return "an explicit or implicit switch of attention from one topic to another"
	case LabelContrast:
		return "the paragraph highlights a difference, opposition or conflict of ideas"
	}
	return ""
}

func roleList(topic string) string {
	var b strings.Builder
	for i, label := range Labels {
		fmt.Fprintf(&b, "%d. %s", i+1, label)
		if desc := labelDescription(label, topic); desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// NumberedBlock renders paragraphs as a 1-based numbered block, the format
// the response parser expects back.
func NumberedBlock(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	items := make([]string, len(texts))
	for i, text := range texts {
		items[i] = fmt.Sprintf("%d. %s", i+1, text)
	}
	return strings.Join(items, "\n\n")
}

// BuildPrompt produces the user prompt for a group of paragraphs. The model
// must answer one line per paragraph in the form "N. role" or
// "N. role / role".
func BuildPrompt(texts []string, topic string) string {
	var b strings.Builder
	b.WriteString("Task: determine one or, only if absolutely necessary, two DIFFERENT discourse roles for EACH paragraph in the list below.\n\n")
	b.WriteString("IMPORTANT RULES:\n")
	b.WriteString("1. Use ONLY roles from the provided list\n")
	b.WriteString("2. Do NOT repeat the same role for one paragraph\n")
	b.WriteString("3. If a paragraph serves several functions, pick at most TWO most important DIFFERENT roles\n\n")
	b.WriteString("Possible roles:\n")
	b.WriteString(roleList(topic))
	b.WriteString("\n\nResponse format: for each paragraph give its number, a period, then one or two roles separated by ' / '. One paragraph per line.\n\n")
	b.WriteString("CORRECT examples:\n")
	b.WriteString("1. topic development\n")
	b.WriteString("2. example / digression\n")
	b.WriteString("3. noise\n\n")
	b.WriteString("INCORRECT examples:\n")
	b.WriteString("1. humor or irony / humor or irony\n")
	b.WriteString("2. This is an example\n\n")
	b.WriteString("Text to analyze:\n")
	b.WriteString(NumberedBlock(texts))
	return b.String()
}

// SessionInstructions produces the instructions installed once per stream
// session. The role list is bound to the topic here so the per-chunk
// messages stay small.
func SessionInstructions(topic string) string {
	var b strings.Builder
	b.WriteString("You are a text analysis expert. Your task is to determine the discourse role of text fragments.\n\n")
	fmt.Fprintf(&b, "Document topic: '%s'\n\n", topic)
	b.WriteString("Possible roles:\n")
	b.WriteString(roleList(topic))
	b.WriteString("\n\nIMPORTANT RULES:\n")
	b.WriteString("- Pick at most TWO DIFFERENT roles\n")
	b.WriteString("- Do NOT repeat the same role\n")
	b.WriteString("- Answer ONLY with the role name(s), joined by ' / '")
	return b.String()
}

// ChunkMessage produces the per-paragraph message sent over an initialized
// stream session.
func ChunkMessage(text string) string {
	var b strings.Builder
	b.WriteString("Determine the discourse role of the following text fragment:\n\n")
	fmt.Fprintf(&b, "\"%s\"\n\n", text)
	b.WriteString("Answer ONLY with the role name from the list, with no explanations.")
	return b.String()
}

// BuildChunkPrompt produces a self-contained user prompt for a single
// paragraph, used when one chunk is classified over the stateless batch
// channel. The model answers with the role name only.
func BuildChunkPrompt(text, topic string) string {
	var b strings.Builder
	b.WriteString("Task: determine one or, only if absolutely necessary, two DIFFERENT discourse roles for the paragraph below.\n\n")
	b.WriteString("Use ONLY roles from this list:\n")
	b.WriteString(roleList(topic))
	b.WriteString("\n\nAnswer with the role name only, or two roles separated by ' / '. No explanations.\n\n")
	b.WriteString("Paragraph:\n")
	b.WriteString(text)
	return b.String()
}
