// Package version reports the build information of the livequery binary.
//
// Values are injected at link time, for example:
//
//	go build -ldflags "-X github.com/fleetdm/livequery/server/version.version=1.2.0 \
//	  -X github.com/fleetdm/livequery/server/version.revision=$(git rev-parse HEAD)"
//
// Anything not injected reads "unknown".
package version

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
)

const appName = "livequery"

// set with -ldflags -X
var (
	version   = "unknown"
	branch    = "unknown"
	revision  = "unknown"
	buildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Branch    string `json:"branch"`
	Revision  string `json:"revision"`
	GoVersion string `json:"go_version"`
	BuildDate string `json:"build_date"`
}

// Version returns the build information of the running binary.
func Version() Info {
	return Info{
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		GoVersion: runtime.Version(),
		BuildDate: buildDate,
	}
}

func (i Info) String() string {
	return appName + " version " + i.Version
}

func (i Info) fields() [][2]string {
	return [][2]string{
		{"branch", i.Branch},
		{"revision", i.Revision},
		{"build date", i.BuildDate},
		{"go version", i.GoVersion},
	}
}

// Fprint writes a single version line.
func Fprint(w io.Writer) {
	fmt.Fprintln(w, Version())
}

// FprintFull writes the version line followed by every build field.
func FprintFull(w io.Writer) {
	info := Version()
	fmt.Fprintln(w, info)
	for _, f := range info.fields() {
		fmt.Fprintf(w, "  %s:\t%s\n", f[0], f[1])
	}
}

// Handler serves the build information as JSON.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(Version()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
