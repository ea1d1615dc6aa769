package answer

import (
	"regexp"
	"strings"
)

// roleMarkers are checked in priority order; when a completion contains one,
// only the text after its first occurrence is kept. Models occasionally echo
// the transcript format back, prefixing their answer with a role label.
var roleMarkers = []string{
	"AI:",
	"Answer:",
	"answer:",
	"<|MOSS|>:",
	"回答：",
	"回答:",
}

// urlPattern matches http/https/ftp/file URLs within an answer.
var urlPattern = regexp.MustCompile(`(?:https?|ftp|file)://[-A-Za-z0-9+&@#/%?=~_|!:,.;]+[-A-Za-z0-9+&@#/%=~_|]`)

// sceneSuffix asks the user to confirm before a scene-tagged action proceeds.
const sceneSuffix = "\n\n请问是否发起申请？(是/否)"

// sceneEChart renders as a chart; its answers never get the confirmation suffix.
const sceneEChart = "echart"

// purgeMarkers keeps only the text after the first occurrence of the highest
// priority role marker present. An answer without markers is unchanged.
func purgeMarkers(text string) string {
	for _, marker := range roleMarkers {
		if idx := strings.Index(text, marker); idx >= 0 {
			return text[idx+len(marker):]
		}
	}
	return text
}

// spaceURLs surrounds every URL with spaces so downstream renderers do not
// glue adjacent text onto the link.
func spaceURLs(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(u string) string {
		return " " + u + " "
	})
}

// applyReplaceRules rewrites configured phrases in the answer.
func applyReplaceRules(text string, rules map[string]string) string {
	for from, to := range rules {
		text = strings.ReplaceAll(text, from, to)
	}
	return text
}

// appendSceneSuffix adds the confirmation prompt for non-trivial scenes. Only
// the reply sent to the user carries it; the persisted turn stays clean so the
// prompt never replays as conversational memory.
func appendSceneSuffix(text, scene string) string {
	if scene == "" || scene == sceneEChart {
		return text
	}
	return text + sceneSuffix
}

// postprocess runs the cleanup pass over a raw completion.
func postprocess(text string, rules map[string]string) string {
	text = purgeMarkers(text)
	text = applyReplaceRules(text, rules)
	return spaceURLs(text)
}
