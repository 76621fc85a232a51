// Package buildinfo exposes the version stamped into the binary.
//
// Release builds set the variables with -ldflags, for example
//
//	-X 'github.com/m3rciful/formbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/formbot/core/buildinfo.Commit=abcdef0'
//
// Otherwise the VCS stamp recorded by the go tool is used when present.
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = "local"
	// Date is the build time in RFC 3339.
	Date = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fillFromVCS(info.Settings)
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

func fillFromVCS(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "local" && s.Value != "" {
				Commit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if Date == "" {
				Date = s.Value
			}
		}
	}
}
