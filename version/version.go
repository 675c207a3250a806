// Package version reports what build of tahti is running. Version is meant
// to be set at build time:
//
//	go build -ldflags "-X github.com/tahtiseq/tahti/version.Version=$(git describe --dirty)"
//
// and falls back to the VCS revision embedded in the build info.
package version

import "runtime/debug"

var Version string

var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	modified := false
	for _, setting := range info.Settings {
		if setting.Key == "vcs.modified" && setting.Value == "true" {
			modified = true
			break
		}
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			shortHash := setting.Value
			if len(shortHash) > 7 {
				shortHash = shortHash[:7]
			}
			if modified {
				return shortHash + "-dirty"
			}
			return shortHash
		}
	}
	return ""
}()

var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return Hash
}()
