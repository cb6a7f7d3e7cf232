package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ProgressBar provides PyTorch-style per-batch progress visualization
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
	out         io.Writer
}

// NewProgressBar creates a new progress bar writing to stdout
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		current:     0,
		startTime:   time.Now(),
		width:       70, // Character width of progress bar
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
		out:         os.Stdout,
	}
}

// SetOutput redirects the progress bar to a different writer
func (pb *ProgressBar) SetOutput(out io.Writer) {
	pb.out = out
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// UpdateMetrics updates metrics without advancing progress
func (pb *ProgressBar) UpdateMetrics(metrics map[string]float64) {
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out) // New line after completion
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64

	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			totalTime := time.Duration(float64(elapsed) / percentage)
			eta = totalTime - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d",
		pb.description,
		percentage*100,
		bar,
		pb.current,
		pb.total,
	)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s",
			formatDuration(elapsed),
			formatDuration(eta),
		)
	} else {
		line += fmt.Sprintf(" [%s<00:00",
			formatDuration(elapsed),
		)
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	// Metrics render in sorted key order so the line is stable across
	// refreshes.
	keys := make([]string, 0, len(pb.metrics))
	for key := range pb.metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := pb.metrics[key]
		if strings.Contains(key, "acc") {
			line += fmt.Sprintf(", %s=%.2f%%", key, value*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", key, value)
		}
	}

	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// ModelArchitecturePrinter prints PyTorch-style model summaries
type ModelArchitecturePrinter struct {
	modelName string
	out       io.Writer
}

// NewModelArchitecturePrinter creates a printer for the given model name
func NewModelArchitecturePrinter(modelName string) *ModelArchitecturePrinter {
	return &ModelArchitecturePrinter{
		modelName: modelName,
		out:       os.Stdout,
	}
}

// SetOutput redirects the printer to a different writer
func (p *ModelArchitecturePrinter) SetOutput(out io.Writer) {
	p.out = out
}

// PrintArchitecture prints the model's layer listing
func (p *ModelArchitecturePrinter) PrintArchitecture(model Module) {
	fmt.Fprintf(p.out, "%s(\n", p.modelName)
	for i, layer := range layerList(model) {
		fmt.Fprintf(p.out, "  (%d): %s\n", i, formatLayer(layer))
	}
	fmt.Fprintf(p.out, ")\n")
}

// layerList flattens the model into its display layers
func layerList(model Module) []Module {
	switch m := model.(type) {
	case *C3D:
		return m.seq.modules
	case *Sequential:
		return m.modules
	default:
		return []Module{model}
	}
}

// formatLayer formats a single layer for display
func formatLayer(layer Module) string {
	switch l := layer.(type) {
	case *Conv3D:
		out := l.weight.Shape[0]
		in := l.weight.Shape[1]
		k := l.weight.Shape[2]
		return fmt.Sprintf("Conv3d(%d, %d, kernel_size=(%d, %d, %d), stride=(%d, %d, %d), padding=(%d, %d, %d), bias=%t)",
			in, out, k, k, k, l.stride, l.stride, l.stride, l.padding, l.padding, l.padding, l.bias != nil)
	case *MaxPool3D:
		return fmt.Sprintf("MaxPool3d(kernel_size=(%d, %d, %d), stride=(%d, %d, %d), padding=(%d, %d, %d))",
			l.kernel[0], l.kernel[1], l.kernel[2],
			l.stride[0], l.stride[1], l.stride[2],
			l.padding[0], l.padding[1], l.padding[2])
	case *Linear:
		return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=%t)",
			l.weight.Shape[0], l.weight.Shape[1], l.bias != nil)
	case *ReLU:
		return "ReLU()"
	case *Dropout:
		return fmt.Sprintf("Dropout(p=%g)", l.p)
	case *Flatten:
		return "Flatten()"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", layer), "*training.") + "()"
	}
}

// CountParameters returns the total number of trainable elements
func CountParameters(model Module) int64 {
	var total int64
	for _, param := range model.Parameters() {
		total += int64(param.Numel())
	}
	return total
}
