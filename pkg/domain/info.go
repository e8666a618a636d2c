package domain

import "strings"

// Recognised keys of the structural-variant INFO string carried by
// BeaconAlleleRequest.alternateBasesInfo.
const (
	InfoKeyEnd   = "END"
	InfoKeySVLen = "SVLEN"
	InfoKeyCIPos = "CIPOS"
	InfoKeyCIEnd = "CIEND"
)

var infoKeys = map[string]struct{}{
	InfoKeyEnd:   {},
	InfoKeySVLen: {},
	InfoKeyCIPos: {},
	InfoKeyCIEnd: {},
}

// InfoKeys returns the recognised INFO keys in canonical order.
func InfoKeys() []string {
	return []string{InfoKeyEnd, InfoKeySVLen, InfoKeyCIPos, InfoKeyCIEnd}
}

// IsInfoKey reports whether key belongs to the INFO vocabulary.
func IsInfoKey(key string) bool {
	_, ok := infoKeys[key]
	return ok
}

// InfoField is one KEY=VALUE entry of an INFO string.
type InfoField struct {
	Key   string
	Value string
}

// ParseInfo splits a semicolon delimited INFO string. Segments that are not
// of the form KEY=VALUE are returned separately as malformed. Empty segments
// (for example a trailing semicolon) are ignored.
func ParseInfo(s string) (fields []InfoField, malformed []string) {
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		key, value, ok := strings.Cut(seg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			malformed = append(malformed, seg)
			continue
		}
		fields = append(fields, InfoField{Key: key, Value: strings.TrimSpace(value)})
	}
	return fields, malformed
}
