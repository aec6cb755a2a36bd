package main

import (
	"fmt"
	"runtime/debug"
)

// set with -ldflags, build info is used for go install builds
var (
	version = ""
	commit  = ""
	date    = ""
)

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if version == "" && bi.Main.Version != "" {
		version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "" {
				commit = s.Value
			}
		case "vcs.time":
			if date == "" {
				date = s.Value
			}
		}
	}
}

func getVersion() string {
	if version == "" {
		return "unknown"
	}

	return version
}

func getVersionFull() string {
	return fmt.Sprintf("tileserver %s, commit: %s, built at: %s, layers api: tilelayer", getVersion(), commit, date)
}
