package compose

import "strings"

// substitutions maps characters the core PDF fonts cannot show to ASCII
// stand-ins. Anything non-ASCII without an entry becomes "?".
var substitutions = map[rune]string{
	'‘': "'",    // left single quote
	'’': "'",    // right single quote
	'‚': ",",    // low single quote
	'“': `"`,    // left double quote
	'”': `"`,    // right double quote
	'′': "'",    // prime
	'″': `"`,    // double prime
	'–': "-",    // en dash
	'—': "--",   // em dash
	'−': "-",    // minus sign
	'…': "...",  // ellipsis
	'•': "*",    // bullet
	' ': " ",    // no-break space
	'×': "x",    // multiplication sign
	'÷': "/",    // division sign
	'±': "+/-",  // plus-minus
	'≠': "!=",   // not equal
	'≤': "<=",   // less-or-equal
	'≥': ">=",   // greater-or-equal
	'≈': "~=",   // approximately equal
	'→': "->",   // right arrow
	'←': "<-",   // left arrow
	'↔': "<->",  // both arrows
	'⇒': "=>",   // double right arrow
	'∞': "inf",  // infinity
	'π': "pi",   // greek pi
	'θ': "theta",
	'Δ': "Delta",
	'°': " deg", // degree sign
	'²': "^2",   // superscript two
	'³': "^3",   // superscript three
	'½': "1/2",
	'¼': "1/4",
	'¾': "3/4",
}

// Sanitize folds text to pure ASCII so the base Latin fonts render it.
// Typographic punctuation and common math glyphs get readable stand-ins;
// everything else non-ASCII degrades to "?".
func Sanitize(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		default:
			if sub, ok := substitutions[r]; ok {
				b.WriteString(sub)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}
