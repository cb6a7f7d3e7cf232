package preprocessing

import (
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FrameProcessor decodes video frames and turns them into network input
// with buffer reuse across calls. Frames are resized with nearest-neighbor
// sampling, center-cropped, and emitted channel-first.
type FrameProcessor struct {
	mu           sync.Mutex
	resizeBuffer *image.RGBA
	frameBuffer  []float32
	resizeWidth  int
	resizeHeight int
	cropSize     int
}

// NewFrameProcessor creates a frame processor that resizes decoded frames
// to resizeWidth x resizeHeight and center-crops them to cropSize.
func NewFrameProcessor(resizeWidth, resizeHeight, cropSize int) (*FrameProcessor, error) {
	if resizeWidth <= 0 || resizeHeight <= 0 || cropSize <= 0 {
		return nil, errors.Errorf("frame dimensions must be positive, got %dx%d crop %d",
			resizeWidth, resizeHeight, cropSize)
	}
	if cropSize > resizeWidth || cropSize > resizeHeight {
		return nil, errors.Errorf("crop size %d exceeds resize dimensions %dx%d",
			cropSize, resizeWidth, resizeHeight)
	}

	return &FrameProcessor{
		resizeWidth:  resizeWidth,
		resizeHeight: resizeHeight,
		cropSize:     cropSize,
	}, nil
}

// Frame is a decoded, cropped frame ready for network input. Data is CHW
// ordered RGB normalized to [0, 1].
type Frame struct {
	Data     []float32
	Width    int
	Height   int
	Channels int
}

// DecodeFrame decodes one JPEG frame and preprocesses it. The returned
// Frame owns its data and stays valid across later calls.
func (p *FrameProcessor) DecodeFrame(reader io.Reader) (*Frame, error) {
	img, err := jpeg.Decode(reader)
	if err != nil {
		return nil, errors.Wrap(err, "decode jpeg frame")
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("frame has no pixels")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resizeBuffer == nil {
		p.resizeBuffer = image.NewRGBA(image.Rect(0, 0, p.resizeWidth, p.resizeHeight))
	}
	resized := p.resizeBuffer

	// Nearest-neighbor resize into the reused buffer.
	scaleX := float64(width) / float64(p.resizeWidth)
	scaleY := float64(height) / float64(p.resizeHeight)

	for y := 0; y < p.resizeHeight; y++ {
		for x := 0; x < p.resizeWidth; x++ {
			srcX := int(float64(x) * scaleX)
			srcY := int(float64(y) * scaleY)

			if srcX >= width {
				srcX = width - 1
			}
			if srcY >= height {
				srcY = height - 1
			}

			resized.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	crop := p.cropSize
	cropX := (p.resizeWidth - crop) / 2
	cropY := (p.resizeHeight - crop) / 2
	plane := crop * crop

	requiredSize := 3 * plane
	if len(p.frameBuffer) < requiredSize {
		p.frameBuffer = make([]float32, requiredSize)
	}
	data := p.frameBuffer[:requiredSize]

	// Center-crop and pack as CHW float32 in [0, 1].
	for y := 0; y < crop; y++ {
		for x := 0; x < crop; x++ {
			r, g, b, _ := resized.At(cropX+x, cropY+y).RGBA()

			idx := y*crop + x
			rVal := float32(r) / 65535.0
			gVal := float32(g) / 65535.0
			bVal := float32(b) / 65535.0

			if rVal != rVal || rVal < 0 || rVal > 1 {
				rVal = 0.0
			}
			if gVal != gVal || gVal < 0 || gVal > 1 {
				gVal = 0.0
			}
			if bVal != bVal || bVal < 0 || bVal > 1 {
				bVal = 0.0
			}

			data[0*plane+idx] = rVal
			data[1*plane+idx] = gVal
			data[2*plane+idx] = bVal
		}
	}

	result := make([]float32, len(data))
	copy(result, data)

	return &Frame{
		Data:     result,
		Width:    crop,
		Height:   crop,
		Channels: 3,
	}, nil
}

// DecodeFrameFile opens, decodes, and preprocesses a single frame file.
func (p *FrameProcessor) DecodeFrameFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open frame %s", path)
	}
	defer file.Close()

	frame, err := p.DecodeFrame(file)
	if err != nil {
		return nil, errors.Wrapf(err, "process frame %s", path)
	}
	return frame, nil
}

// CropSize returns the output side length.
func (p *FrameProcessor) CropSize() int {
	return p.cropSize
}
