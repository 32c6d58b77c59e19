// Package evaluation scores a detector against a labelled YOLO-format dataset.
package evaluation

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true, ".gif": true,
}

// Dataset is a parsed data.yaml descriptor.
type Dataset struct {
	Root  string
	Val   []string
	Names []string
}

// GroundTruth is one labelled object with its box normalized to [0,1] (cx, cy, w, h).
type GroundTruth struct {
	ClassID int
	CX, CY  float64
	W, H    float64
}

// Sample is a validation image and its labels.
type Sample struct {
	ImagePath string
	Labels    []GroundTruth
}

type datasetFile struct {
	Path  string    `yaml:"path"`
	Val   yaml.Node `yaml:"val"`
	Names yaml.Node `yaml:"names"`
	NC    int       `yaml:"nc"`
}

// LoadDataset reads a data.yaml descriptor. Relative paths resolve against the
// descriptor's own directory.
func LoadDataset(descriptor string) (*Dataset, error) {
	raw, err := os.ReadFile(descriptor)
	if err != nil {
		return nil, errors.Wrap(err, "read dataset descriptor")
	}

	var file datasetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parse %s", descriptor)
	}

	root := filepath.Dir(descriptor)
	if file.Path != "" {
		root = resolve(root, file.Path)
	}

	val, err := stringOrList(&file.Val)
	if err != nil {
		return nil, errors.Wrap(err, "val")
	}
	if len(val) == 0 {
		return nil, errors.Errorf("%s declares no val split", descriptor)
	}
	for i := range val {
		val[i] = resolve(root, val[i])
	}

	names, err := parseNames(&file.Names)
	if err != nil {
		return nil, errors.Wrap(err, "names")
	}
	if file.NC > 0 && len(names) > 0 && file.NC != len(names) {
		return nil, errors.Errorf("nc is %d but %d names are declared", file.NC, len(names))
	}

	return &Dataset{Root: root, Val: val, Names: names}, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func stringOrList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errors.Errorf("expected a path or list of paths at line %d", node.Line)
	}
}

// parseNames accepts both the list form and the {index: name} map form.
func parseNames(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := node.Decode(&byIndex); err != nil {
			return nil, err
		}
		out := make([]string, len(byIndex))
		for i := range out {
			name, ok := byIndex[i]
			if !ok {
				return nil, errors.Errorf("class indices are not contiguous: missing %d", i)
			}
			out[i] = name
		}
		return out, nil
	default:
		return nil, errors.Errorf("expected a list or map at line %d", node.Line)
	}
}

// Samples enumerates the val split with labels attached, sorted by image path.
func (d *Dataset) Samples() ([]Sample, error) {
	var images []string
	for _, src := range d.Val {
		found, err := listImages(src)
		if err != nil {
			return nil, err
		}
		images = append(images, found...)
	}
	if len(images) == 0 {
		return nil, errors.Errorf("no validation images under %v", d.Val)
	}
	sort.Strings(images)

	samples := make([]Sample, 0, len(images))
	for _, img := range images {
		labels, err := ReadLabels(LabelPath(img))
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{ImagePath: img, Labels: labels})
	}
	return samples, nil
}

// listImages expands a directory (recursively) or a .txt list file into image paths.
func listImages(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, errors.Wrap(err, "val source")
	}

	if !info.IsDir() {
		if strings.ToLower(filepath.Ext(src)) != ".txt" {
			return []string{src}, nil
		}
		return readListFile(src)
	}

	var out []string
	err = filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	return out, errors.Wrapf(err, "walk %s", src)
}

func readListFile(listFile string) ([]string, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, errors.Wrap(err, "open image list")
	}
	defer f.Close()

	base := filepath.Dir(listFile)
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, resolve(base, line))
	}
	return out, errors.Wrapf(scanner.Err(), "read %s", listFile)
}

// LabelPath maps .../images/x.jpg to .../labels/x.txt.
func LabelPath(imagePath string) string {
	p := filepath.ToSlash(imagePath)
	if i := strings.LastIndex(p, "/images/"); i >= 0 {
		p = p[:i] + "/labels/" + p[i+len("/images/"):]
	}
	p = strings.TrimSuffix(p, filepath.Ext(p)) + ".txt"
	return filepath.FromSlash(p)
}

// ReadLabels parses a YOLO label file. A missing file means the image has no objects.
// Segment lines (class x1 y1 x2 y2 ...) are reduced to their bounding box.
func ReadLabels(path string) ([]GroundTruth, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()

	var labels []GroundTruth
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, errors.Errorf("%s:%d: expected 5 fields, got %d", path, line, len(fields))
		}
		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: class", path, line)
		}
		coords := make([]float64, len(fields)-1)
		for i := range coords {
			if coords[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
				return nil, errors.Wrapf(err, "%s:%d: coordinate", path, line)
			}
		}

		if len(coords) == 4 {
			labels = append(labels, GroundTruth{ClassID: classID, CX: coords[0], CY: coords[1], W: coords[2], H: coords[3]})
			continue
		}
		if len(coords)%2 != 0 || len(coords) < 6 {
			return nil, errors.Errorf("%s:%d: segment needs at least 3 x,y points, got %d values", path, line, len(coords))
		}
		gt := segmentBox(coords)
		gt.ClassID = classID
		labels = append(labels, gt)
	}
	return labels, errors.Wrapf(scanner.Err(), "read %s", path)
}

// segmentBox returns the normalized xywh box enclosing a polygon of x,y pairs.
func segmentBox(xy []float64) GroundTruth {
	minX, minY := xy[0], xy[1]
	maxX, maxY := minX, minY
	for i := 2; i < len(xy); i += 2 {
		minX, maxX = math.Min(minX, xy[i]), math.Max(maxX, xy[i])
		minY, maxY = math.Min(minY, xy[i+1]), math.Max(maxY, xy[i+1])
	}
	return GroundTruth{
		CX: (minX + maxX) / 2,
		CY: (minY + maxY) / 2,
		W:  maxX - minX,
		H:  maxY - minY,
	}
}
