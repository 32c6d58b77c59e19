package detector

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/arbovm/levenshtein"
	"github.com/pkg/errors"
)

// namesMetadataKey is where YOLO exports store the class table.
const namesMetadataKey = "names"

var nameEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// ParseNames parses a class table serialized as a dict literal,
// e.g. {0: 'missing_hole', 1: 'mouse_bite'}. Indices must run 0..n-1.
func ParseNames(raw string) ([]string, error) {
	matches := nameEntry.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, errors.Errorf("no class names in %q", raw)
	}

	byIndex := make(map[int]string, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "class index %q", m[1])
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		if _, dup := byIndex[idx]; dup {
			return nil, errors.Errorf("duplicate class index %d", idx)
		}
		byIndex[idx] = strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\\`, `\`).Replace(name)
	}
	return denseNames(byIndex)
}

// denseNames turns an index map into a slice, rejecting gaps.
func denseNames(byIndex map[int]string) ([]string, error) {
	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	names := make([]string, len(indices))
	for i, idx := range indices {
		if idx != i {
			return nil, errors.Errorf("class indices are not contiguous: missing %d", i)
		}
		names[i] = byIndex[idx]
	}
	return names, nil
}

// NamesFromMetadata reads the class table from engine metadata; ok is false when absent.
func NamesFromMetadata(metadata map[string]string) (names []string, ok bool, err error) {
	raw, found := metadata[namesMetadataKey]
	if !found || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	names, err = ParseNames(raw)
	if err != nil {
		return nil, true, err
	}
	return names, true, nil
}

// PinNames decides the class table used for the lifetime of the process.
// The model's own table wins; the dataset's is the fallback. When both exist they
// must agree index by index, so results never silently shift between labels.
func PinNames(modelNames, datasetNames []string) ([]string, error) {
	switch {
	case len(modelNames) == 0 && len(datasetNames) == 0:
		return nil, errors.New("no class table: model has no names metadata and dataset declares none")
	case len(modelNames) == 0:
		return append([]string(nil), datasetNames...), nil
	case len(datasetNames) == 0:
		return append([]string(nil), modelNames...), nil
	}

	if len(modelNames) != len(datasetNames) {
		return nil, errors.Errorf("class table mismatch: model has %d classes, dataset has %d",
			len(modelNames), len(datasetNames))
	}
	for i := range modelNames {
		if modelNames[i] == datasetNames[i] {
			continue
		}
		return nil, fmt.Errorf("class table mismatch at index %d: model has %q, dataset has %q%s",
			i, modelNames[i], datasetNames[i], nearestHint(modelNames[i], datasetNames))
	}
	return append([]string(nil), modelNames...), nil
}

// nearestHint points at the dataset label closest to name, which usually reveals
// a rename or a reordered table.
func nearestHint(name string, candidates []string) string {
	best, bestIdx := -1, -1
	for i, c := range candidates {
		d := levenshtein.Distance(name, c)
		if best < 0 || d < best {
			best, bestIdx = d, i
		}
	}
	if bestIdx < 0 {
		return ""
	}
	return fmt.Sprintf(" (closest dataset label: %q at index %d, distance %d)", candidates[bestIdx], bestIdx, best)
}
