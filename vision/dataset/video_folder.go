// Package dataset loads video classification datasets stored as folders of
// extracted frames, one directory per clip.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Ingram66/C2-NET/tensor"
	"github.com/Ingram66/C2-NET/vision/preprocessing"
)

// Frame geometry of the C3D input pipeline: frames are resized to
// 171x128 and center-cropped to 112x112.
const (
	ResizeWidth  = 171
	ResizeHeight = 128
	CropSize     = 112
)

var frameExtensions = []string{".jpg", ".jpeg"}

// VideoDataset reads fixed-length clips from a directory tree laid out as
// root/{split}/{class}/{clip}/frame*.jpg. Class names are sorted so the
// label mapping is stable across runs. Each sample is a channel-first
// [3, clipLen, 112, 112] Float32 clip and a scalar Int32 label.
type VideoDataset struct {
	root       string
	split      string
	clipLen    int
	clipDirs   []string
	clipFrames [][]string
	labels     []int32
	catalog    *ClassCatalog
	processor  *preprocessing.FrameProcessor
	cache      *ClipCache
}

// NewVideoDataset scans root/split and indexes every clip directory. Clips
// with fewer than clipLen frames are an error, not a skip, so a bad layout
// surfaces before training starts.
func NewVideoDataset(root, split string, clipLen int) (*VideoDataset, error) {
	if clipLen <= 0 {
		return nil, errors.Errorf("clip length must be positive, got %d", clipLen)
	}

	processor, err := preprocessing.NewFrameProcessor(ResizeWidth, ResizeHeight, CropSize)
	if err != nil {
		return nil, errors.Wrap(err, "create frame processor")
	}

	dataset := &VideoDataset{
		root:      root,
		split:     split,
		clipLen:   clipLen,
		processor: processor,
	}

	splitDir := filepath.Join(root, split)
	classes, err := listSubdirectories(splitDir)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, errors.Errorf("no class directories in %s", splitDir)
	}

	dataset.catalog, err = NewClassCatalog(classes)
	if err != nil {
		return nil, errors.Wrapf(err, "build class catalog for %s", splitDir)
	}

	for _, className := range classes {
		label, err := dataset.catalog.Label(className)
		if err != nil {
			return nil, err
		}

		classDir := filepath.Join(splitDir, className)
		clips, err := listSubdirectories(classDir)
		if err != nil {
			return nil, err
		}

		for _, clipName := range clips {
			clipDir := filepath.Join(classDir, clipName)
			frames, err := listFrames(clipDir)
			if err != nil {
				return nil, err
			}
			if len(frames) < clipLen {
				return nil, errors.Errorf("clip %s has %d frames, need at least %d",
					clipDir, len(frames), clipLen)
			}

			dataset.clipDirs = append(dataset.clipDirs, clipDir)
			dataset.clipFrames = append(dataset.clipFrames, frames[:clipLen])
			dataset.labels = append(dataset.labels, label)
		}
	}

	if len(dataset.clipDirs) == 0 {
		return nil, errors.Errorf("no clips found under %s", splitDir)
	}

	return dataset, nil
}

// SetCache attaches a clip cache. Pass the same cache to several datasets
// to share it; pass nil to disable caching.
func (d *VideoDataset) SetCache(cache *ClipCache) {
	d.cache = cache
}

// Len returns the number of clips.
func (d *VideoDataset) Len() int {
	return len(d.clipDirs)
}

// NumClasses returns the number of class directories found.
func (d *VideoDataset) NumClasses() int {
	return d.catalog.NumClasses()
}

// ClassNames returns the sorted class names backing the label mapping.
func (d *VideoDataset) ClassNames() []string {
	return d.catalog.Names()
}

// Catalog returns the class catalog backing the label mapping.
func (d *VideoDataset) Catalog() *ClassCatalog {
	return d.catalog
}

// Get decodes the clip at the given index. The returned tensors own their
// data and stay valid regardless of later calls.
func (d *VideoDataset) Get(index int) (*tensor.Tensor, *tensor.Tensor, error) {
	if index < 0 || index >= len(d.clipDirs) {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", index, len(d.clipDirs))
	}

	clipData, err := d.clipData(index)
	if err != nil {
		return nil, nil, err
	}

	data := make([]float32, len(clipData))
	copy(data, clipData)

	clip, err := tensor.NewTensor([]int{3, d.clipLen, CropSize, CropSize}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create clip tensor")
	}

	label, err := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{d.labels[index]})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create label tensor")
	}

	return clip, label, nil
}

func (d *VideoDataset) clipData(index int) ([]float32, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(d.clipDirs[index]); ok {
			return cached, nil
		}
	}

	packed, err := d.decodeClip(index)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Put(d.clipDirs[index], packed)
	}
	return packed, nil
}

// decodeClip decodes every frame of one clip and packs the planes as
// [channel][frame][y][x].
func (d *VideoDataset) decodeClip(index int) ([]float32, error) {
	plane := CropSize * CropSize
	packed := make([]float32, 3*d.clipLen*plane)

	for t, path := range d.clipFrames[index] {
		frame, err := d.processor.DecodeFrameFile(path)
		if err != nil {
			return nil, err
		}

		for c := 0; c < 3; c++ {
			src := frame.Data[c*plane : (c+1)*plane]
			dst := packed[(c*d.clipLen+t)*plane : (c*d.clipLen+t+1)*plane]
			copy(dst, src)
		}
	}

	return packed, nil
}

// ClassDistribution returns the number of clips per class.
func (d *VideoDataset) ClassDistribution() map[string]int {
	dist := make(map[string]int)
	for _, label := range d.labels {
		dist[d.catalog.names[label]]++
	}
	return dist
}

// String returns a readable summary of the dataset.
func (d *VideoDataset) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("VideoDataset(%s/%s): %d clips, %d classes\n",
		d.root, d.split, len(d.clipDirs), d.catalog.NumClasses()))

	dist := d.ClassDistribution()
	for _, className := range d.catalog.names {
		sb.WriteString(fmt.Sprintf("  %s: %d clips\n", className, dist[className]))
	}
	return sb.String()
}

func listSubdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// listFrames returns the frame files of one clip directory in lexical
// order, so zero-padded frame names play back in sequence.
func listFrames(clipDir string) ([]string, error) {
	var frames []string
	for _, ext := range frameExtensions {
		matches, err := filepath.Glob(filepath.Join(clipDir, "*"+ext))
		if err != nil {
			return nil, errors.Wrapf(err, "list frames in %s", clipDir)
		}
		frames = append(frames, matches...)
	}

	sort.Strings(frames)
	return frames, nil
}
