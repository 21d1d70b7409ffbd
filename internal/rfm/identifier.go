package rfm

// identifierLength is the number of digits in a canonical customer identifier.
const identifierLength = 10

// NormalizeIdentifier extracts the first run of decimal digits from raw and keeps
// its last 10 characters. Country-code prefixes such as "+91" fall away this way.
// The second return value is false when raw holds no digits at all.
func NormalizeIdentifier(raw string) (string, bool) {
	start := -1
	end := len(raw)
	for i := 0; i < len(raw); i++ {
		isDigit := raw[i] >= '0' && raw[i] <= '9'
		if start < 0 {
			if isDigit {
				start = i
			}
			continue
		}
		if !isDigit {
			end = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	digits := raw[start:end]
	if len(digits) > identifierLength {
		digits = digits[len(digits)-identifierLength:]
	}
	return digits, true
}

// IsValidIdentifier reports whether s is a 10-digit mobile number in the 7/8/9 block.
func IsValidIdentifier(s string) bool {
	if len(s) != identifierLength {
		return false
	}
	switch s[0] {
	case '7', '8', '9':
	default:
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FilterValidIdentifiers keeps the rows whose identifier normalizes to a valid
// mobile number and substitutes the canonical form. Input order is preserved.
func FilterValidIdentifiers(rows []RawTransactionRow) []RawTransactionRow {
	out := make([]RawTransactionRow, 0, len(rows))
	for _, row := range rows {
		id, ok := NormalizeIdentifier(row.Identifier)
		if !ok || !IsValidIdentifier(id) {
			continue
		}
		row.Identifier = id
		out = append(out, row)
	}
	return out
}
