package ops

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/chxd/dldt/infer"
	"github.com/chxd/dldt/ir"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// WeightsReader reads constant tensor data stored in external weight files.
// It memory-maps the files and caches the mappings by path, since many
// constants usually share the same file.
type WeightsReader struct {
	baseDir  string
	mappings map[string]*mmap.ReaderAt
	mu       sync.Mutex
}

// NewWeightsReader creates a reader resolving weight file locations relative
// to baseDir, typically the directory holding the model file.
func NewWeightsReader(baseDir string) *WeightsReader {
	return &WeightsReader{
		baseDir:  baseDir,
		mappings: make(map[string]*mmap.ReaderAt),
	}
}

// getOrCreateMapping returns the mmap region for the given location, creating
// it if necessary.
func (r *WeightsReader) getOrCreateMapping(location string) (*mmap.ReaderAt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reader, ok := r.mappings[location]; ok {
		return reader, nil
	}
	path := filepath.Join(r.baseDir, location)
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap external weights file %q", path)
	}
	r.mappings[location] = reader
	return reader, nil
}

// ReadInto copies len(dst) bytes at offset from the weights file at location
// directly into dst, typically a tensor's backing memory.
func (r *WeightsReader) ReadInto(location string, offset int64, dst []byte) error {
	if r.baseDir == "" {
		return errors.New("a base directory is required to read external weights")
	}
	reader, err := r.getOrCreateMapping(location)
	if err != nil {
		return err
	}
	n, err := reader.ReadAt(dst, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to read %d bytes at offset %d from external weights file %q",
			len(dst), offset, location)
	}
	if n != len(dst) {
		return errors.Errorf("read %d bytes but expected %d from external weights file %q", n, len(dst), location)
	}
	return nil
}

// Close unmaps all cached regions. The reader must not be used afterwards.
func (r *WeightsReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, reader := range r.mappings {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close mmap for %q", path)
		}
	}
	r.mappings = nil
	return firstErr
}

// ConstantFromExternal creates a constant node whose raw data (native layout
// of the given shape) lives in an external weights file. length, when
// positive, must match the byte size of the shape.
func ConstantFromExternal(g *ir.Graph, name string, r *WeightsReader, shape shapes.Shape, location string, offset, length int64) (*ir.Node, error) {
	t := tensors.FromShape(shape)
	var err error
	t.MutableBytes(func(data []byte) {
		if length > 0 && length != int64(len(data)) {
			err = errors.Errorf("constant %q shaped %s uses %d bytes, but the external entry declares %d bytes",
				name, shape, len(data), length)
			return
		}
		err = r.ReadInto(location, offset, data)
	})
	if err != nil {
		t.FinalizeAll()
		return nil, errors.WithMessagef(err, "loading external constant %q", name)
	}
	n := newNode(g, name, OpConst, nil, nil, infer.Constant)
	n.Value = t
	return n, nil
}
