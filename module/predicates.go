package module

// IsDigit reports whether b is an ASCII decimal digit.
func IsDigit(b byte) bool { return b >= '0' && b <= '9' }

// IsAlpha reports whether b is an ASCII letter or underscore.
func IsAlpha(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// IsIdentStart reports whether b may start an identifier.
func IsIdentStart(b byte) bool { return IsAlpha(b) }

// IsIdentCont reports whether b may continue an identifier.
func IsIdentCont(b byte) bool { return IsAlpha(b) || IsDigit(b) }

// IsWhitespace reports whether b is whitespace per §6: any of '\n', '\r',
// '\t' or space.
func IsWhitespace(b byte) bool {
	switch b {
	case '\n', '\r', '\t', ' ':
		return true
	}
	return false
}

// operatorChars is every byte that may appear in a multi-character
// operator token (+ - * / % = ! < > & | : . , ; ( ) { } [ ] @ ?).
var operatorChars = [256]bool{}

func init() {
	for _, c := range "+-*/%=!<>&|:.,;(){}[]@?" {
		operatorChars[byte(c)] = true
	}
}

// IsOperatorChar reports whether b can appear in an operator/punctuation
// token.
func IsOperatorChar(b byte) bool { return operatorChars[b] }
