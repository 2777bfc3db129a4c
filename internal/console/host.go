package console

import "strings"

// Host is the CI environment the runner is executing in.
type Host int

const (
	HostUnknown Host = iota
	HostAppveyor
	HostTravis
	HostTeamCity
)

func (h Host) String() string {
	switch h {
	case HostAppveyor:
		return "AppVeyor"
	case HostTravis:
		return "Travis CI"
	case HostTeamCity:
		return "TeamCity"
	default:
		return "Unknown"
	}
}

// ParseHost maps a config or flag value to a Host. Unrecognized values map
// to HostUnknown.
func ParseHost(s string) Host {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "appveyor":
		return HostAppveyor
	case "travis":
		return HostTravis
	case "teamcity":
		return HostTeamCity
	default:
		return HostUnknown
	}
}

// DetectHost inspects the environment through getenv.
func DetectHost(getenv func(string) string) Host {
	switch {
	case strings.EqualFold(getenv("APPVEYOR"), "true"):
		return HostAppveyor
	case strings.TrimSpace(getenv("TRAVIS_OS_NAME")) != "":
		return HostTravis
	case strings.TrimSpace(getenv("TEAMCITY_PROJECT_NAME")) != "":
		return HostTeamCity
	default:
		return HostUnknown
	}
}
