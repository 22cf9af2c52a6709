package domain

import "strings"

// ClassifyTrueFalse maps the two alternatives of a true/false question onto the
// (true, false) display slots. Alternatives whose text reads "verdadeiro"/"v" or
// "falso"/"f" (case-insensitive) are matched by text; anything else falls back to
// position, first alternative as true. The fallback is a display heuristic only,
// kept for exams whose alternatives lack canonical V/F text; it never affects
// scoring, which follows the stored correct flag.
func ClassifyTrueFalse(alts []Alternative) (trueAlt, falseAlt *Alternative) {
	for i := range alts {
		switch strings.ToLower(strings.TrimSpace(alts[i].Text)) {
		case "verdadeiro", "v":
			if trueAlt == nil {
				trueAlt = &alts[i]
			}
		case "falso", "f":
			if falseAlt == nil {
				falseAlt = &alts[i]
			}
		}
	}
	if trueAlt != nil && falseAlt != nil {
		return trueAlt, falseAlt
	}
	if len(alts) < 2 {
		return nil, nil
	}
	// One slot matched by text: the remaining alternative takes the other slot.
	if trueAlt != nil {
		for i := range alts {
			if &alts[i] != trueAlt {
				return trueAlt, &alts[i]
			}
		}
	}
	if falseAlt != nil {
		for i := range alts {
			if &alts[i] != falseAlt {
				return &alts[i], falseAlt
			}
		}
	}
	return &alts[0], &alts[1]
}
