// Package version carries build metadata, set at link time:
//
//	go build -ldflags "-X github.com/emanehab99/gstar-stats/internal/version.Version=v1.2.0 \
//	  -X github.com/emanehab99/gstar-stats/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/emanehab99/gstar-stats/internal/version.BuildDate=$(date -u +%F)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the build metadata as served by the HTTP view.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

func String() string {
	return Version + " (" + Commit + ", built " + BuildDate + ")"
}
