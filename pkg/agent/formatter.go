package agent

import (
	"regexp"
	"strings"
)

// Voice formatting post-conditions. Every outbound response, no matter which
// handler produced it, is constrained to at most two sentences and at most
// one question mark. Violations are corrected here, never surfaced to the
// user.

var sentenceBoundaryRe = regexp.MustCompile(`([.!?])\s+`)

// FormatVoice normalizes whitespace, truncates to two sentences, and strips
// all question marks past the first. The split is on punctuation followed by
// whitespace so decimal amounts like 240.00 stay intact.
func FormatVoice(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return ""
	}

	sentences := splitSentences(cleaned)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}

	questionSeen := false
	for i, sentence := range sentences {
		if !strings.Contains(sentence, "?") {
			continue
		}
		if questionSeen {
			sentences[i] = strings.ReplaceAll(sentence, "?", ".")
			continue
		}
		first := strings.Index(sentence, "?")
		sentences[i] = sentence[:first+1] + strings.ReplaceAll(sentence[first+1:], "?", "")
		questionSeen = true
	}

	out := strings.TrimSpace(strings.Join(sentences, " "))
	if out != "" && !strings.ContainsRune(".!?", rune(out[len(out)-1])) {
		out += "."
	}
	return out
}

// SentenceCount reports how many sentences FormatVoice would see in text.
func SentenceCount(text string) int {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return 0
	}
	return len(splitSentences(cleaned))
}

// QuestionCount reports the number of question marks in text.
func QuestionCount(text string) int {
	return strings.Count(text, "?")
}

func splitSentences(cleaned string) []string {
	// Keep the trailing punctuation on each sentence.
	marked := sentenceBoundaryRe.ReplaceAllString(cleaned, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// acknowledgmentOpeners are phrases that count as an explicit acknowledgment
// of what the user just said.
var acknowledgmentOpeners = []string{
	"i understand", "understood", "i hear you", "got it", "thank you",
	"thanks", "no problem", "my apologies", "i'm sorry", "perfect",
	"great", "okay", "alright", "sorry",
}

// startsWithAcknowledgment reports whether text opens with a recognized
// acknowledgment phrase.
func startsWithAcknowledgment(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, opener := range acknowledgmentOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

// withAcknowledgment prefixes a brief acknowledgment when the response
// follows a meaningful user statement and has room for it under the
// two-sentence cap.
func withAcknowledgment(text string) string {
	if startsWithAcknowledgment(text) || SentenceCount(text) >= 2 {
		return text
	}
	return "I understand. " + text
}
