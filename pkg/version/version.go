package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time with
// -ldflags "-X github.com/zsiec/ltcgen/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// Name is the program name used in logs, RTCP CNAMEs and WAV metadata.
const Name = "ltcgen"

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        OS,
		Arch:      Arch,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, os/arch: %s/%s)",
		Name, i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.OS, i.Arch)
}

// Short is "ltcgen <version>".
func (i Info) Short() string {
	return fmt.Sprintf("%s %s", Name, i.Version)
}

// Software is the tag written into generated files, e.g. "ltcgen/1.2.0".
func (i Info) Software() string {
	return Name + "/" + i.Version
}
