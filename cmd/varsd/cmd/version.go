package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString(Version, BuildTime))
		},
	})
}

// versionString formats a build version. Versions that are not valid
// semantic versions are printed as given.
func versionString(version, buildTime string) string {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Sprintf("varsd %s (unversioned, built %s, %s)", version, buildTime, runtime.Version())
	}

	channel := "release"
	if semver.Prerelease(v) != "" {
		channel = "pre-release"
	}
	return fmt.Sprintf("varsd %s (%s, built %s, %s)", semver.Canonical(v), channel, buildTime, runtime.Version())
}
