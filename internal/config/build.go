package config

import "runtime/debug"

// Set with -ldflags "-X eduplatform/internal/config.version=..." in release
// builds. Commit and build time fall back to the VCS stamp the go tool
// embeds when the linker leaves them unset.
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// NewBuildInfo reports what binary is running. Every cmd logs it at startup.
func NewBuildInfo() BuildInfo {
	bi, _ := debug.ReadBuildInfo()
	return resolveBuildInfo(version, commit, buildTime, bi)
}

func resolveBuildInfo(ver, rev, built string, bi *debug.BuildInfo) BuildInfo {
	info := BuildInfo{Version: ver, Commit: rev, BuildTime: built}
	if bi != nil {
		var dirty bool
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if rev == "" {
					info.Commit = shortRevision(s.Value)
				}
			case "vcs.time":
				if built == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
		if dirty && rev == "" && info.Commit != "" {
			info.Commit += "-dirty"
		}
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
