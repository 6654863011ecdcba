package cfg

import "strconv"

// parseUnsigned and parseSigned accept the same numeral forms the reference
// tokenizer's isnumerical character class allows: decimal, and 0x/0X hex.
// parseSigned receives the text with its leading sign still in place.
func parseUnsigned(text string) (uint64, error) {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		return strconv.ParseUint(text[2:], 16, 64)
	}
	return strconv.ParseUint(text, 10, 64)
}

func parseSigned(text string) (int64, error) {
	sign, body := "", text
	if len(body) > 0 && (body[0] == '-' || body[0] == '+') {
		sign, body = body[:1], body[1:]
	}
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		return strconv.ParseInt(sign+body[2:], 16, 64)
	}
	return strconv.ParseInt(text, 10, 64)
}
