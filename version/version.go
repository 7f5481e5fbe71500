package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = TBSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// TBSemVer is the current version of the bridge tooling.
	// It's the Semantic Version of the software.
	TBSemVer = "0.3.0"

	// LiteClientVersion is the version of the light client contract
	// whose message layouts are produced.
	LiteClientVersion = "1"
)
