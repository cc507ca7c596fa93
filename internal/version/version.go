// Package version holds the build version of the StrideQuest engine.
package version

// Version is overridden at build time with
//
//	go build -ldflags "-X github.com/AaronLay10/StrideQuest/internal/version.Version=x.y.z"
var Version = "0.1.0"
