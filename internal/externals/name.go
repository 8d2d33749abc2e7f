package externals

import "strings"

// import thunk prefixes added by linkers, longest first.
var importPrefixes = []string{"__imp__", "__imp_", "_imp__", "j_"}

// FixName strips loader artifacts like version suffixes, @plt markers and
// import thunk prefixes from a raw symbol name. Applying it to its own result
// returns the result unchanged.
func FixName(raw string) string {
	name := raw
	for {
		previous := name

		name = strings.TrimPrefix(name, ".")
		if i := strings.IndexByte(name, '@'); i > 0 {
			name = name[:i]
		}
		for _, prefix := range importPrefixes {
			name = strings.TrimPrefix(name, prefix)
		}

		if name == previous {
			break
		}
	}

	if name == "" {
		return raw
	}
	return name
}

// HasExternalMarker returns whether the raw symbol name carries a decoration
// that only symbols of external libraries have.
func HasExternalMarker(raw string) bool {
	if i := strings.IndexByte(raw, '@'); i > 0 {
		return true
	}
	for _, prefix := range importPrefixes[:3] {
		if strings.HasPrefix(raw, prefix) {
			return true
		}
	}
	return false
}
