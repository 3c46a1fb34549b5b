package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

type schemeInfo struct {
	name string
	help string
}

var schemes = []schemeInfo{
	{"stringset", "exact token sets as roaring bitmaps over a trained token dictionary"},
	{"qgram", "q-gram bit sketch (-q sets the gram length)"},
	{"minwise-lcg32", "min-wise hashing over q-grams, 32-bit LCG permutations"},
	{"minwise-lcg64", "min-wise hashing over q-grams, 64-bit LCG permutations"},
	{"minwise-sha", "min-wise hashing over q-grams, SHA3 permutations"},
}

func schemeNames() []string {
	names := make([]string, len(schemes))
	for i, s := range schemes {
		names[i] = s.name
	}
	return names
}

func knownScheme(name string) bool {
	return slices.Contains(schemeNames(), name)
}

func newSchemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemes",
		Short: "List the available signature schemes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			width := 0
			for _, s := range schemes {
				width = max(width, len(s.name))
			}
			for _, s := range schemes {
				fmt.Fprintf(w, "%s%s  %s\n", s.name, strings.Repeat(" ", width-len(s.name)), s.help)
			}
		},
	}
}
