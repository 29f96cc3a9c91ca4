// Package version exposes the application version derived from build
// metadata. Go 1.18+ automatically embeds VCS info (commit hash, dirty
// flag) into the binary via runtime/debug.BuildInfo, so no -ldflags are
// required at build time.
package version

import "runtime/debug"

// AppName is the prefix of the string Full returns.
const AppName = "deepsoc"

// GitCommit is the short git commit hash (8 chars), or "dev" when build
// info is unavailable (e.g. `go test`, non-VCS builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "deepsoc/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
