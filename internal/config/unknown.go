package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"server":  {"base_url"},
	"network": {"connect_timeout", "data_timeout", "requests_per_second", "user_agent"},
	"logging": {"log_format", "log_level"},
	"watch":   {"listen", "metrics_listen", "poll_interval"},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates tie.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}()

// knownLeafKeys maps every leaf key to its section, so a key placed at the
// top level can point the user at the right section.
var knownLeafKeys = func() map[string]string {
	out := make(map[string]string)
	for section, keys := range knownKeys {
		for _, k := range keys {
			out[k] = section
		}
	}

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key.
func buildKeyError(key toml.Key) error {
	if len(key) == 1 {
		name := key[0]

		if section, ok := knownLeafKeys[name]; ok {
			return fmt.Errorf("config key %q belongs in the [%s] section", name, section)
		}

		if suggestion := closestMatch(name, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section %q, did you mean %q?", name, suggestion)
		}

		return fmt.Errorf("unknown config key %q", name)
	}

	section, name := key[0], key[len(key)-1]

	keys, ok := knownKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section %q, did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if suggestion := closestMatch(name, keys); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", name, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", name, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
