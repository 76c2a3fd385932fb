// Package version parses the version strings printed by the analysis server
// and compares them against the client's own version.
package version

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Identifier is a semantic version reduced to what equality needs.
type Identifier struct {
	Major      string
	Minor      string
	Patch      string
	Prerelease []string
}

var tokenPattern = regexp.MustCompile(`v?[0-9]+\.[0-9]+\.[0-9]+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?`)

// Parse extracts the first semantic version token from text, so both "0.3.1"
// and "ferrous-owl 0.3.1" parse.
func Parse(text string) (Identifier, error) {
	token := tokenPattern.FindString(strings.TrimSpace(text))
	if token == "" {
		return Identifier{}, fmt.Errorf("no semantic version in %q", text)
	}
	v := token
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Identifier{}, fmt.Errorf("invalid semantic version %q", token)
	}

	core := strings.TrimPrefix(semver.Canonical(v), "v")
	if idx := strings.IndexAny(core, "-+"); idx >= 0 {
		core = core[:idx]
	}
	parts := strings.SplitN(core, ".", 3)
	id := Identifier{Major: parts[0], Minor: parts[1], Patch: parts[2]}
	if pre := strings.TrimPrefix(semver.Prerelease(v), "-"); pre != "" {
		id.Prerelease = strings.Split(pre, ".")
	}
	return id, nil
}

// Equal reports whether both identifiers share the triple and pre-release list.
func (id Identifier) Equal(other Identifier) bool {
	if id.Major != other.Major || id.Minor != other.Minor || id.Patch != other.Patch {
		return false
	}
	if len(id.Prerelease) != len(other.Prerelease) {
		return false
	}
	for i := range id.Prerelease {
		if id.Prerelease[i] != other.Prerelease[i] {
			return false
		}
	}
	return true
}

func (id Identifier) String() string {
	s := id.Major + "." + id.Minor + "." + id.Patch
	if len(id.Prerelease) > 0 {
		s += "-" + strings.Join(id.Prerelease, ".")
	}
	return s
}

// NeedsUpdate reports whether the installed server differs from the expected
// version. An empty or unparseable current version always needs an update.
func NeedsUpdate(current, expected string) bool {
	if strings.TrimSpace(current) == "" {
		return true
	}
	cur, err := Parse(current)
	if err != nil {
		return true
	}
	want, err := Parse(expected)
	if err != nil {
		return true
	}
	return !cur.Equal(want)
}
