package versioning

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

// APIVersion represents a semantic version for the API
type APIVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

// String returns the version as a string (e.g., "1.2.3" or "1.2.3-beta")
func (v APIVersion) String() string {
	version := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		version += "-" + v.Prerelease
	}
	return version
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare returns -1, 0 or 1. A release sorts after its prereleases.
func (v APIVersion) Compare(other APIVersion) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

// Known versions
var (
	V1_0_0 = APIVersion{Major: 1, Minor: 0, Patch: 0}
	V1_1_0 = APIVersion{Major: 1, Minor: 1, Patch: 0}
)

// CurrentVersion is the version served
var CurrentVersion = V1_1_0

// MinimumSupportedVersion is the oldest version clients may request
var MinimumSupportedVersion = V1_0_0

var versionPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([a-zA-Z0-9.\-]+))?$`)

// ParseVersion accepts "1", "1.2", "1.2.3" and "1.2.3-beta", with an optional leading v
func ParseVersion(s string) (APIVersion, error) {
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') {
		s = s[1:]
	}
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return APIVersion{}, fmt.Errorf("invalid version format: %s", s)
	}
	part := func(i int) int {
		if m[i] == "" {
			return 0
		}
		n, _ := strconv.Atoi(m[i])
		return n
	}
	return APIVersion{Major: part(1), Minor: part(2), Patch: part(3), Prerelease: m[4]}, nil
}

// Feature is one capability and the version that introduced it
type Feature struct {
	Name         string     `json:"name"`
	IntroducedIn APIVersion `json:"introduced_in"`
	Description  string     `json:"description"`
}

// Features lists the API surface by version
var Features = []Feature{
	{"contacts", V1_0_0, "List, create, update and delete contacts"},
	{"messages", V1_0_0, "Filter, page and append messages"},
	{"files", V1_0_0, "List, download, write and delete JSON files"},
	{"stats", V1_0_0, "Summary, contact, message, file and activity statistics"},
	{"importers", V1_1_0, "process_chat and process_messages file actions"},
	{"watch", V1_1_0, "Websocket change feed"},
}

// SupportedFeatures returns the features available to a client on version v
func SupportedFeatures(v APIVersion) []Feature {
	var out []Feature
	for _, f := range Features {
		if v.Compare(f.IntroducedIn) >= 0 {
			out = append(out, f)
		}
	}
	return out
}

// IsSupported reports whether v is between the minimum and the current major version
func IsSupported(v APIVersion) bool {
	return v.Compare(MinimumSupportedVersion) >= 0 && v.Major <= CurrentVersion.Major
}

// VersionRange renders the supported range for response headers
func VersionRange() string {
	return MinimumSupportedVersion.String() + " - " + CurrentVersion.String()
}

// BuildInfo describes the running binary
type BuildInfo struct {
	API       string `json:"api_version"`
	Build     string `json:"build_version"`
	Commit    string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// NewBuildInfo fills in the API and Go versions around the linker-set values
func NewBuildInfo(build, commit, buildTime string) BuildInfo {
	return BuildInfo{
		API:       CurrentVersion.String(),
		Build:     build,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}
