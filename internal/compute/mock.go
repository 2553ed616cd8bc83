package compute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
)

// MockCompute is an in-memory implementation of Compute for testing
type MockCompute struct {
	mu sync.RWMutex

	// Containers tracks the state of mock containers, keyed by id.
	Containers map[string]*ContainerInfo

	// Specs records the spec each container was created with.
	Specs map[string]ContainerSpec

	// Images tracks which image references are "present" locally.
	Images map[string]bool

	// ExecResults maps container ids to a default exec result.
	ExecResults map[string]*ExecResult

	// ExecHandler, when set, computes exec results from the argv. It
	// takes precedence over ExecResults.
	ExecHandler func(id string, argv []string, opts ExecOptions) (*ExecResult, error)

	// Uploads stores the bytes of every uploaded tar stream, keyed by
	// container id.
	Uploads map[string][][]byte

	// Downloads maps container id to the tar bytes returned by
	// DownloadTar.
	Downloads map[string][]byte

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextID int
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockCompute creates a new mock compute adapter
func NewMockCompute() *MockCompute {
	return &MockCompute{
		Containers:  make(map[string]*ContainerInfo),
		Specs:       make(map[string]ContainerSpec),
		Images:      make(map[string]bool),
		ExecResults: make(map[string]*ExecResult),
		Uploads:     make(map[string][][]byte),
		Downloads:   make(map[string][]byte),
		Errors:      make(map[string]error),
		CallLog:     make([]MockCall, 0),
	}
}

func (m *MockCompute) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockCompute) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// SetExecResult sets the default result for exec operations on a container
func (m *MockCompute) SetExecResult(id string, result *ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecResults[id] = result
}

// GetCallsFor returns all recorded calls for a specific method
func (m *MockCompute) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

func (m *MockCompute) findByName(name string) (string, *ContainerInfo) {
	for id, info := range m.Containers {
		if info.Name == name || id == name {
			return id, info
		}
	}
	return "", nil
}

// EnsureImage marks the image as present, or fails with an injected error.
func (m *MockCompute) EnsureImage(ctx context.Context, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnsureImage", image)

	if err, ok := m.Errors["EnsureImage"]; ok {
		return err
	}

	m.Images[image] = true
	return nil
}

// CreateContainer creates a mock container and returns a generated id.
func (m *MockCompute) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateContainer", spec)

	if err, ok := m.Errors["CreateContainer"]; ok {
		return "", err
	}

	if _, existing := m.findByName(spec.Name); existing != nil {
		return "", lberrors.ComputeFailed("create",
			fmt.Errorf("container name %q: %w", spec.Name, lberrors.ErrNameConflict))
	}

	m.nextID++
	id := fmt.Sprintf("mock-container-%d", m.nextID)

	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, key+"="+value)
	}

	bindings := make(map[int]int, len(spec.PortBindings))
	for containerPort, hostPort := range spec.PortBindings {
		bindings[containerPort] = hostPort
	}

	m.Containers[id] = &ContainerInfo{
		ID:           id,
		Name:         spec.Name,
		Status:       StatusStopped,
		Env:          env,
		PortBindings: bindings,
	}
	m.Specs[id] = spec

	return id, nil
}

// Start starts an existing mock container.
func (m *MockCompute) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start", id)

	if err, ok := m.Errors["Start"]; ok {
		return err
	}

	container, ok := m.Containers[id]
	if !ok {
		return m.notFound("start", id)
	}
	container.Status = StatusRunning
	return nil
}

// Pause suspends a running mock container; paused is a no-op success.
func (m *MockCompute) Pause(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Pause", id)

	if err, ok := m.Errors["Pause"]; ok {
		return err
	}

	container, ok := m.Containers[id]
	if !ok {
		return m.notFound("pause", id)
	}
	container.Status = StatusPaused
	return nil
}

// Unpause resumes a paused mock container; running is a no-op success.
func (m *MockCompute) Unpause(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Unpause", id)

	if err, ok := m.Errors["Unpause"]; ok {
		return err
	}

	container, ok := m.Containers[id]
	if !ok {
		return m.notFound("unpause", id)
	}
	container.Status = StatusRunning
	return nil
}

// Remove deletes a mock container.
func (m *MockCompute) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Remove", id)

	if err, ok := m.Errors["Remove"]; ok {
		return err
	}

	if _, ok := m.Containers[id]; !ok {
		return m.notFound("remove", id)
	}
	delete(m.Containers, id)
	delete(m.Specs, id)
	return nil
}

// ContainerExists reports whether a container with the name or id exists.
func (m *MockCompute) ContainerExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("ContainerExists", name)

	if err, ok := m.Errors["ContainerExists"]; ok {
		return false, err
	}

	_, info := m.findByName(name)
	return info != nil, nil
}

// Inspect returns the stored container info.
func (m *MockCompute) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("Inspect", id)

	if err, ok := m.Errors["Inspect"]; ok {
		return nil, err
	}

	if _, container := m.findByName(id); container != nil {
		clone := *container
		return &clone, nil
	}
	return &ContainerInfo{ID: id, Status: StatusNotFound}, nil
}

// ListContainers returns mock containers whose names start with namePrefix.
func (m *MockCompute) ListContainers(ctx context.Context, namePrefix string) ([]*ContainerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("ListContainers", namePrefix)

	if err, ok := m.Errors["ListContainers"]; ok {
		return nil, err
	}

	var containers []*ContainerInfo
	for _, info := range m.Containers {
		if strings.HasPrefix(info.Name, namePrefix) {
			clone := *info
			containers = append(containers, &clone)
		}
	}
	return containers, nil
}

// Exec returns the configured result for the container, consulting
// ExecHandler first.
func (m *MockCompute) Exec(ctx context.Context, id string, argv []string, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	m.record("Exec", id, argv, opts)
	handler := m.ExecHandler
	err, injected := m.Errors["Exec"]
	result, hasResult := m.ExecResults[id]
	_, exists := m.Containers[id]
	m.mu.Unlock()

	if injected {
		return nil, err
	}
	if !exists {
		return nil, m.notFound("exec", id)
	}
	if handler != nil {
		return handler(id, argv, opts)
	}
	if hasResult {
		return result, nil
	}
	return &ExecResult{ExitCode: 0, Stdout: "", Stderr: ""}, nil
}

// UploadTar records the uploaded stream.
func (m *MockCompute) UploadTar(ctx context.Context, id, destPath string, tarStream io.Reader) error {
	data, readErr := io.ReadAll(tarStream)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UploadTar", id, destPath)

	if err, ok := m.Errors["UploadTar"]; ok {
		return err
	}
	if readErr != nil {
		return lberrors.ComputeFailed("upload", readErr)
	}
	if _, ok := m.Containers[id]; !ok {
		return m.notFound("upload", id)
	}

	m.Uploads[id] = append(m.Uploads[id], data)
	return nil
}

// DownloadTar returns the configured tar bytes for the container.
func (m *MockCompute) DownloadTar(ctx context.Context, id, srcPath string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("DownloadTar", id, srcPath)

	if err, ok := m.Errors["DownloadTar"]; ok {
		return nil, err
	}
	if _, ok := m.Containers[id]; !ok {
		return nil, m.notFound("download", id)
	}

	return io.NopCloser(bytes.NewReader(m.Downloads[id])), nil
}

func (m *MockCompute) notFound(op, id string) error {
	return lberrors.ComputeFailed(op, fmt.Errorf("container %q: %w", id, lberrors.ErrNotFound))
}

// Ensure MockCompute implements Compute
var _ Compute = (*MockCompute)(nil)
