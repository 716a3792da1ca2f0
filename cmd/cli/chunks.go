package main

import (
	"math"
	"strings"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// splitChunks cuts fingerprints into consecutive windows of chunkSeconds by
// start time, the way a live stream would deliver them. Windows without
// fingerprints are kept as empty chunks so the stream keeps its timing.
func splitChunks(fingerprints []models.Fingerprint, chunkSeconds float64) [][]models.Fingerprint {
	if len(fingerprints) == 0 || chunkSeconds <= 0 {
		return nil
	}

	first, last := fingerprints[0].StartsAt, fingerprints[0].StartsAt
	for _, fp := range fingerprints[1:] {
		first = math.Min(first, fp.StartsAt)
		last = math.Max(last, fp.StartsAt)
	}

	chunks := make([][]models.Fingerprint, int((last-first)/chunkSeconds)+1)
	for _, fp := range fingerprints {
		i := int((fp.StartsAt - first) / chunkSeconds)
		chunks[i] = append(chunks[i], fp)
	}
	return chunks
}

// splitArgs separates the leading positional argument of a subcommand from
// its flags, so both "insert a.fp --title x" and "insert --title x a.fp"
// work.
func splitArgs(args []string) (string, []string) {
	var positional string
	var flagArgs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "-"):
			flagArgs = append(flagArgs, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flagArgs = append(flagArgs, args[i+1])
				i++
			}
		case positional == "":
			positional = arg
		default:
			flagArgs = append(flagArgs, arg)
		}
	}
	return positional, flagArgs
}
