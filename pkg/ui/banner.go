package ui

import (
	"fmt"
	"io"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
)

const logo = `
  ____                 __                        __
 / __/_ _____ ___ ___ / /  ___  __ _____  ___ __/ /
/ _// // /_ //_ // _ \/ _ \/ _ \/ // / _ \/ _ '/ _ \
/_/  \_,_//__//__/_//_/_//_/\___/\_,_/_//_/\_,_/\_,_/
`

// Banner writes the startup banner with version and target.
func Banner(w io.Writer, target string) {
	fmt.Fprintln(w, BannerStyle.Render(logo))
	fmt.Fprintf(w, "  %s %s\n",
		VersionStyle.Render("v"+defaults.Version),
		SubtleStyle.Render("injection fuzzing with a human gait"))
	if target != "" {
		fmt.Fprintf(w, "  %s %s\n\n",
			StatLabelStyle.Render("target:"),
			URLStyle.Render(target))
	}
}
