package preprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// createFrameJPEG encodes a solid-color JPEG frame for testing.
func createFrameJPEG(width, height int, fill color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes(), err
}

// createSplitJPEG encodes a frame whose left half is one color and right
// half another, for crop placement checks.
func createSplitJPEG(width, height int, left, right color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes(), err
}

func TestNewFrameProcessor(t *testing.T) {
	processor, err := NewFrameProcessor(171, 128, 112)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if processor.CropSize() != 112 {
		t.Errorf("CropSize = %d, expected 112", processor.CropSize())
	}

	if _, err := NewFrameProcessor(0, 128, 112); err == nil {
		t.Error("Expected error for zero resize width")
	}
	if _, err := NewFrameProcessor(171, 128, 150); err == nil {
		t.Error("Expected error for crop larger than resize height")
	}
}

func TestDecodeFrame(t *testing.T) {
	processor, err := NewFrameProcessor(32, 24, 16)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	t.Run("SolidColor", func(t *testing.T) {
		jpegData, err := createFrameJPEG(60, 40, color.RGBA{255, 0, 0, 255})
		if err != nil {
			t.Fatalf("Failed to create test frame: %v", err)
		}

		frame, err := processor.DecodeFrame(bytes.NewReader(jpegData))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if frame.Width != 16 || frame.Height != 16 {
			t.Errorf("Frame size = %dx%d, expected 16x16", frame.Width, frame.Height)
		}
		if frame.Channels != 3 {
			t.Errorf("Channels = %d, expected 3", frame.Channels)
		}
		if len(frame.Data) != 3*16*16 {
			t.Errorf("Data length = %d, expected %d", len(frame.Data), 3*16*16)
		}

		for i, v := range frame.Data {
			if v < 0 || v > 1 || math.IsNaN(float64(v)) {
				t.Fatalf("Value at %d out of range: %v", i, v)
			}
		}

		plane := 16 * 16
		center := 8*16 + 8
		if frame.Data[center] < 0.85 {
			t.Errorf("Red channel = %v, expected near 1", frame.Data[center])
		}
		if frame.Data[plane+center] > 0.15 || frame.Data[2*plane+center] > 0.15 {
			t.Errorf("Green/blue channels = %v/%v, expected near 0",
				frame.Data[plane+center], frame.Data[2*plane+center])
		}
	})

	t.Run("CenterCrop", func(t *testing.T) {
		cropProcessor, err := NewFrameProcessor(64, 32, 16)
		if err != nil {
			t.Fatalf("Failed to create processor: %v", err)
		}

		jpegData, err := createSplitJPEG(128, 64, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255})
		if err != nil {
			t.Fatalf("Failed to create test frame: %v", err)
		}

		frame, err := cropProcessor.DecodeFrame(bytes.NewReader(jpegData))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// The crop window straddles the color boundary, so its left side
		// must be red and its right side blue.
		plane := 16 * 16
		leftIdx := 8*16 + 2
		rightIdx := 8*16 + 13

		if frame.Data[leftIdx] < 0.7 || frame.Data[2*plane+leftIdx] > 0.3 {
			t.Errorf("Left of crop R=%v B=%v, expected red",
				frame.Data[leftIdx], frame.Data[2*plane+leftIdx])
		}
		if frame.Data[2*plane+rightIdx] < 0.7 || frame.Data[rightIdx] > 0.3 {
			t.Errorf("Right of crop R=%v B=%v, expected blue",
				frame.Data[rightIdx], frame.Data[2*plane+rightIdx])
		}
	})

	t.Run("BufferReuse", func(t *testing.T) {
		first, err := createFrameJPEG(50, 50, color.RGBA{255, 0, 0, 255})
		if err != nil {
			t.Fatalf("Failed to create test frame: %v", err)
		}
		second, err := createFrameJPEG(80, 30, color.RGBA{0, 255, 0, 255})
		if err != nil {
			t.Fatalf("Failed to create test frame: %v", err)
		}

		firstFrame, err := processor.DecodeFrame(bytes.NewReader(first))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if processor.resizeBuffer == nil || processor.frameBuffer == nil {
			t.Error("Expected processing buffers to be allocated")
		}

		secondFrame, err := processor.DecodeFrame(bytes.NewReader(second))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// The first result must not be clobbered by the second decode.
		plane := 16 * 16
		center := 8*16 + 8
		if firstFrame.Data[center] < 0.85 {
			t.Errorf("First frame red channel = %v after second decode", firstFrame.Data[center])
		}
		if secondFrame.Data[plane+center] < 0.85 {
			t.Errorf("Second frame green channel = %v, expected near 1", secondFrame.Data[plane+center])
		}
	})

	t.Run("InvalidJPEG", func(t *testing.T) {
		_, err := processor.DecodeFrame(bytes.NewReader([]byte("not a jpeg")))
		if err == nil {
			t.Fatal("Expected error for invalid JPEG data")
		}
		if !strings.Contains(err.Error(), "decode jpeg frame") {
			t.Errorf("Expected decode error, got: %v", err)
		}
	})
}

func TestDecodeFrameFile(t *testing.T) {
	processor, err := NewFrameProcessor(32, 24, 16)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	jpegData, err := createFrameJPEG(40, 40, color.RGBA{0, 0, 255, 255})
	if err != nil {
		t.Fatalf("Failed to create test frame: %v", err)
	}

	path := filepath.Join(t.TempDir(), "frame0001.jpg")
	if err := os.WriteFile(path, jpegData, 0644); err != nil {
		t.Fatalf("Failed to write test frame: %v", err)
	}

	frame, err := processor.DecodeFrameFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(frame.Data) != 3*16*16 {
		t.Errorf("Data length = %d, expected %d", len(frame.Data), 3*16*16)
	}

	_, err = processor.DecodeFrameFile(filepath.Join(t.TempDir(), "missing.jpg"))
	if err == nil {
		t.Fatal("Expected error for missing frame file")
	}
	if !strings.Contains(err.Error(), "open frame") {
		t.Errorf("Expected open error, got: %v", err)
	}
}

func TestFrameProcessorConcurrency(t *testing.T) {
	processor, err := NewFrameProcessor(32, 24, 16)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	jpegData, err := createFrameJPEG(100, 100, color.RGBA{100, 150, 200, 255})
	if err != nil {
		t.Fatalf("Failed to create test frame: %v", err)
	}

	numGoroutines := 8
	decodesPerGoroutine := 10

	var wg sync.WaitGroup
	errCh := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < decodesPerGoroutine; j++ {
				frame, err := processor.DecodeFrame(bytes.NewReader(jpegData))
				if err != nil {
					errCh <- fmt.Errorf("goroutine %d decode %d: %v", id, j, err)
					return
				}
				if len(frame.Data) != 3*16*16 {
					errCh <- fmt.Errorf("goroutine %d decode %d: wrong data length %d", id, j, len(frame.Data))
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func BenchmarkDecodeFrame(b *testing.B) {
	processor, err := NewFrameProcessor(171, 128, 112)
	if err != nil {
		b.Fatalf("Failed to create processor: %v", err)
	}

	jpegData, err := createFrameJPEG(320, 240, color.RGBA{128, 128, 128, 255})
	if err != nil {
		b.Fatalf("Failed to create test frame: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.DecodeFrame(bytes.NewReader(jpegData)); err != nil {
			b.Fatalf("Decode error: %v", err)
		}
	}
}
