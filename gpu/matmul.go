package gpu

import (
	"fmt"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

const matmulShaderTemplate = `
@group(0) @binding(0) var<storage, read> lhs: array<f32>;
@group(0) @binding(1) var<storage, read> rhs: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= %du) {
        return;
    }

    let row = idx / %du;
    let col = idx %% %du;

    var sum = 0.0;
    for (var i = 0u; i < %du; i = i + 1u) {
        sum = sum + lhs[row * %du + i] * rhs[i * %du + col];
    }
    output[idx] = sum;
}
`

type matmulPipeline struct {
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

var (
	pipelineCache = map[string]*matmulPipeline{}
	pipelineMu    sync.Mutex
)

func buildMatmulShader(m, k, n int) string {
	total := m * n
	return fmt.Sprintf(matmulShaderTemplate, total, n, n, k, k, n)
}

func getMatmulPipeline(c *Context, m, k, n int) (*matmulPipeline, error) {
	key := fmt.Sprintf("%dx%dx%d", m, k, n)

	pipelineMu.Lock()
	defer pipelineMu.Unlock()

	if p, ok := pipelineCache[key]; ok {
		return p, nil
	}

	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "MatMulShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: buildMatmulShader(m, k, n)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module: %v", err)
	}
	defer module.Release()

	bgl, err := c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout: %v", err)
	}

	pl, err := c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %v", err)
	}

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "MatMulPipeline",
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create compute pipeline: %v", err)
	}

	p := &matmulPipeline{pipeline: pipeline, layout: bgl}
	pipelineCache[key] = p
	return p, nil
}

// MatMul multiplies a (m x k) by b (k x n) on the GPU and returns the
// (m x n) result. Pipelines are cached per shape since the training loop
// reuses a small fixed set of matrix sizes.
func MatMul(a, b []float32, m, k, n int) ([]float32, error) {
	if len(a) != m*k {
		return nil, fmt.Errorf("lhs length %d does not match %dx%d", len(a), m, k)
	}
	if len(b) != k*n {
		return nil, fmt.Errorf("rhs length %d does not match %dx%d", len(b), k, n)
	}

	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	p, err := getMatmulPipeline(c, m, k, n)
	if err != nil {
		return nil, err
	}

	lhsBuf, err := NewFloatBuffer(a, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer lhsBuf.Destroy()

	rhsBuf, err := NewFloatBuffer(b, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer rhsBuf.Destroy()

	outBuf, err := NewEmptyBuffer(m*n, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	if err != nil {
		return nil, err
	}
	defer outBuf.Destroy()

	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "MatMulBindGroup",
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: lhsBuf, Size: lhsBuf.GetSize()},
			{Binding: 1, Buffer: rhsBuf, Size: rhsBuf.GetSize()},
			{Binding: 2, Buffer: outBuf, Size: outBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group: %v", err)
	}

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %v", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)

	workgroups := uint32((m*n + 255) / 256)
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish command: %v", err)
	}
	c.Queue.Submit(cmd)

	return ReadBuffer(outBuf, m*n)
}
