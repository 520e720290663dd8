package markup

import "strings"

// InlineRun is a maximal span of text sharing one style. Exactly one of
// the content fields is meaningful: Formula for inline math, Text for
// everything else.
type InlineRun struct {
	Text    string
	Formula string // inline $...$ math, LaTeX source
	Bold    bool
	Code    bool
}

// IsFormula reports whether the run is an inline math span.
func (r InlineRun) IsFormula() bool {
	return r.Formula != ""
}

// ResolveInline splits text into styled runs. Resolution is two-level:
// first the text alternates plain/bold on paired ** markers, then each
// segment is split on `code` and $math$ spans, leftmost delimiter first.
// Unpaired markers stay literal text. Empty runs are dropped.
func ResolveInline(text string) []InlineRun {
	var runs []InlineRun
	rest := text
	bold := false
	for {
		idx := strings.Index(rest, "**")
		if idx < 0 {
			runs = appendSpanRuns(runs, rest, bold)
			break
		}
		if bold {
			// Inside a bold segment the next ** closes it.
			runs = appendSpanRuns(runs, rest[:idx], true)
			bold = false
		} else {
			// Only open bold if a closing ** exists; otherwise the
			// marker is literal.
			if strings.Index(rest[idx+2:], "**") < 0 {
				runs = appendSpanRuns(runs, rest, false)
				break
			}
			runs = appendSpanRuns(runs, rest[:idx], false)
			bold = true
		}
		rest = rest[idx+2:]
	}
	return runs
}

// appendSpanRuns splits one bold-or-plain segment on `code` and $math$
// spans and appends the resulting runs.
func appendSpanRuns(runs []InlineRun, seg string, bold bool) []InlineRun {
	for seg != "" {
		delim, start := nextSpan(seg)
		if delim == 0 {
			runs = appendText(runs, seg, bold, false)
			break
		}
		end := strings.IndexByte(seg[start+1:], delim)
		if end < 0 {
			// No closing delimiter; everything stays literal.
			runs = appendText(runs, seg, bold, false)
			break
		}
		runs = appendText(runs, seg[:start], bold, false)
		inner := seg[start+1 : start+1+end]
		if delim == '`' {
			runs = appendText(runs, inner, bold, true)
		} else if strings.TrimSpace(inner) != "" {
			runs = append(runs, InlineRun{Formula: strings.TrimSpace(inner), Bold: bold})
		}
		seg = seg[start+1+end+1:]
	}
	return runs
}

// nextSpan finds the leftmost span delimiter in seg, returning the
// delimiter byte and its index, or (0, -1) when none remains.
func nextSpan(seg string) (byte, int) {
	tick := strings.IndexByte(seg, '`')
	dollar := strings.IndexByte(seg, '$')
	switch {
	case tick < 0 && dollar < 0:
		return 0, -1
	case tick < 0:
		return '$', dollar
	case dollar < 0 || tick < dollar:
		return '`', tick
	default:
		return '$', dollar
	}
}

func appendText(runs []InlineRun, text string, bold, code bool) []InlineRun {
	if text == "" {
		return runs
	}
	return append(runs, InlineRun{Text: text, Bold: bold, Code: code})
}
