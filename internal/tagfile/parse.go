package tagfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Parse decodes tag file XML bytes.
func Parse(data []byte) (*TagFile, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a tag file from r. Field presence is not validated here;
// the index builder decides which records are usable.
func Decode(r io.Reader) (*TagFile, error) {
	var tf TagFile
	if err := xml.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("decoding tag file XML: %w", err)
	}
	return &tf, nil
}

// ReadFile returns the raw XML of a local tag file. Files ending in .zst
// are decompressed.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tag file: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading tag file %s: %w", path, err)
		}
		return data, nil
	}

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing tag file %s: %w", path, err)
	}
	return data, nil
}

// Open reads and parses a local tag file.
func Open(path string) (*TagFile, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
