// Package channel validates Bayeux channel names and expands a concrete
// channel name into the ordered list of wildcard patterns that cover it,
// caching the result.
package channel

import "regexp"

// segment matches one path segment under the publish grammar:
// [A-Za-z0-9_\-!~()$@]+
const segmentPattern = `[A-Za-z0-9_\-!~()$@]+`

var (
	publishRe = regexp.MustCompile(`^/` + segmentPattern + `(/` + segmentPattern + `)*/?$`)

	// subscribeRe additionally allows a terminal /* or /** wildcard,
	// including the bare root wildcards "/*" and "/**" with no
	// preceding concrete segment at all.
	subscribeRe = regexp.MustCompile(`^(?:(/` + segmentPattern + `)+/?|(/` + segmentPattern + `)*/\*{1,2})$`)
)

// ValidPublish reports whether name satisfies the publish grammar:
// /seg(/seg)*, optionally with a trailing slash. Wildcards are never
// valid in a publish name.
func ValidPublish(name string) bool {
	return name != "" && publishRe.MatchString(name)
}

// ValidSubscribe reports whether name satisfies the subscribe grammar:
// the publish grammar, or the same with a terminal /* (single-level) or
// /** (recursive) wildcard. A wildcard in a non-terminal position is
// invalid both here and for ValidPublish.
func ValidSubscribe(name string) bool {
	return name != "" && subscribeRe.MatchString(name)
}

// IsPattern reports whether name is itself a wildcard pattern (ends in
// /* or /**), as opposed to a concrete channel name.
func IsPattern(name string) bool {
	return hasSuffixWildcard(name)
}

func hasSuffixWildcard(name string) bool {
	n := len(name)
	if n >= 2 && name[n-2:] == "/*" {
		return true
	}
	if n >= 3 && name[n-3:] == "/**" {
		return true
	}
	return false
}
