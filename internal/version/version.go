// Package version holds weft's build identity. Release builds stamp
// the vars with -ldflags "-X weft/internal/version.Commit=...".
package version

var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the one-line form: the version, plus the abbreviated commit
// when a build stamped one in.
func Info() string {
	if c := shortCommit(); c != "" {
		return Version + " (" + c + ")"
	}
	return Version
}

func shortCommit() string {
	if Commit == "" || Commit == "unknown" {
		return ""
	}
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Full is the multi-line form printed by the version command.
func Full() string {
	return "weft version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
