// Package validate holds the filename predicate shared by every place a
// client-supplied name reaches the filesystem: upload target filenames and
// configured repository names.
package validate

// MaxFilenameLength bounds a filename as accepted by PUT and the per-user
// Repository configuration setting.
const MaxFilenameLength = 255

// Filename reports whether name is non-empty, no longer than
// MaxFilenameLength, and built only from [A-Za-z0-9._%+-]. It is the sole
// defense against directory traversal: no path separators, no wildcards,
// and no special-casing of a leading dot.
func Filename(name string) bool {
	if len(name) == 0 || len(name) > MaxFilenameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !validByte(name[i]) {
			return false
		}
	}
	return true
}

func validByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '%' || b == '+' || b == '-':
		return true
	}
	return false
}
