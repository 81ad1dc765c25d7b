package version

import "fmt"

// Set at build time with -ldflags "-X github.com/acorn-io/acorn-names/pkg/version.Tag=..."
var (
	Tag       = "v0.0.0-dev"
	GitCommit = "HEAD"
)

type Version struct {
	Tag    string `json:"tag"`
	Commit string `json:"commit"`
}

func (v Version) String() string {
	if len(v.Commit) > 12 {
		return fmt.Sprintf("%s+%s", v.Tag, v.Commit[:12])
	}
	return fmt.Sprintf("%s+%s", v.Tag, v.Commit)
}

func Get() Version {
	return Version{
		Tag:    Tag,
		Commit: GitCommit,
	}
}
