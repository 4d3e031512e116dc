// Package severity infers a 1-5 hazard level from free-form report text.
// Classification prefers the OpenAI triage model when configured and
// falls back to a Korean keyword heuristic otherwise.
package severity

import (
	"context"
	"regexp"
	"strings"
)

// Severity levels.
const (
	LevelInfo     = 1
	LevelCaution  = 2
	LevelWatch    = 3
	LevelDanger   = 4
	LevelCritical = 5
)

var (
	urgentRe  = regexp.MustCompile(`긴급|즉시|대피|도와줘|help|sos`)
	lethalRe  = regexp.MustCompile(`불|화재|폭발|가스|질식|유독|유해물질|총|흉기|칼|자상|출혈|사망|의식불명|심정지|붕괴|침수 심각|대형사고|연기`)
	violentRe = regexp.MustCompile(`강도|폭행|성폭행|성추행|납치|감금|협박|스토킹`)
	dangerRe  = regexp.MustCompile(`가스누출|누전|감전|대형|균열|기둥|무너질|붕괴 징후|큰 충돌|다중 추돌|역주행`)
	watchRe   = regexp.MustCompile(`사고|충돌|교통사고|접촉사고|부상|피해|위험|화상|침수|산사태|싱크홀|실종|분실|야간 취약|빈집 이상|수상한`)
	minorRe   = regexp.MustCompile(`가로등|노면 파손|공사|소음|악취|불편|통제|차단`)

	suspiciousRe = regexp.MustCompile(`수상한 (사람|차량)`)
)

// HeuristicClassifier assigns severity from Korean keyword classes. It
// never fails, making it a safe default and a fallback for the model
// backed classifier.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates a keyword-based classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify returns the severity level for the given text.
func (c *HeuristicClassifier) Classify(_ context.Context, text string) (int, error) {
	return heuristicLevel(text), nil
}

func heuristicLevel(text string) int {
	t := strings.ToLower(text)

	switch {
	case lethalRe.MatchString(t), violentRe.MatchString(t),
		dangerRe.MatchString(t) && urgentRe.MatchString(t):
		return LevelCritical
	case dangerRe.MatchString(t), watchRe.MatchString(t) && urgentRe.MatchString(t):
		return LevelDanger
	case watchRe.MatchString(t):
		return LevelWatch
	case minorRe.MatchString(t), suspiciousRe.MatchString(t):
		return LevelCaution
	default:
		return LevelInfo
	}
}
