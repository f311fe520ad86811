// Package emergency flags chat messages that mention urgent symptoms.
package emergency

import "strings"

var phrases = []string{
	// Korean phrases carried over from the first deployment.
	"심한 흉통",
	"가슴이 아파",
	"숨이 안 쉬어",
	"호흡곤란",
	"의식을 잃",
	"심한 출혈",
	"많이 피가",
	"골절",
	"뼈가 부러",
	"중독",
	"독을 먹",
	"알레르기",
	"온몸이 부어",
	"응급",
	"119",
	"생명이 위험",

	"severe chest pain",
	"chest hurts",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"breathing difficulty",
	"shortness of breath",
	"loss of consciousness",
	"lost consciousness",
	"passed out",
	"unconscious",
	"severe bleeding",
	"heavy bleeding",
	"major bleeding",
	"fracture",
	"broken bone",
	"poisoning",
	"swallowed poison",
	"overdose",
	"anaphylaxis",
	"allergic reaction",
	"whole body swelling",
	"emergency",
	"911",
	"life-threatening",
	"life threatening",
}

// Directive is spliced into the chat system prompt when Detect reports true.
const Directive = `URGENT: The user may be describing a medical emergency.
Start the reply by telling them to call local emergency services (119 / 911) or go to the nearest emergency room immediately.
Keep the rest of the reply short and do not suggest waiting or home treatment.`

// Detect reports whether message contains any urgent-symptom phrase.
// Matching is a case-insensitive substring test without negation handling.
func Detect(message string) bool {
	return len(Matches(message)) > 0
}

func Matches(message string) []string {
	normalized := strings.ToLower(message)
	if strings.TrimSpace(normalized) == "" {
		return nil
	}

	var matched []string
	for _, phrase := range phrases {
		if strings.Contains(normalized, phrase) {
			matched = append(matched, phrase)
		}
	}
	return matched
}
