package bundler

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
)

// moduleContentType is the content type of the compiled module part.
const moduleContentType = "application/javascript+module"

// BuildMetadata is the JSON preamble naming the bundle's main module. It is
// always the first part of a multipart bundle.
type BuildMetadata struct {
	MainModule string `json:"main_module"`
}

// Packager serializes a compiled module and its externalized assets into the
// final output bytes. The two output modes are distinct implementations
// rather than a flag threaded through one code path, so the metadata
// preamble rule can never leak into single-file output.
type Packager interface {
	Package(mod CompiledModule, assets []ExternalAsset) ([]byte, error)
}

// NewPackager returns the packager for the requested output mode.
func NewPackager(workerBundle bool) Packager {
	if workerBundle {
		return &MultipartPackager{}
	}
	return SingleFilePackager{}
}

// SingleFilePackager writes the compiled module text verbatim. No container
// format, no metadata record.
type SingleFilePackager struct{}

func (SingleFilePackager) Package(mod CompiledModule, _ []ExternalAsset) ([]byte, error) {
	return mod.Source, nil
}

// MultipartPackager serializes {metadata, compiled module, assets} into one
// multipart/form-data container with a fresh random boundary per invocation.
type MultipartPackager struct{}

func (p *MultipartPackager) Package(mod CompiledModule, assets []ExternalAsset) ([]byte, error) {
	boundary, err := pickBoundary(mod, assets)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(BuildMetadata{MainModule: mod.MainModule})
	if err != nil {
		return nil, err
	}
	if err := writePart(w, partHeader("metadata", "", ""), meta); err != nil {
		return nil, err
	}

	if err := writePart(w, partHeader(mod.MainModule, mod.MainModule, moduleContentType), mod.Source); err != nil {
		return nil, err
	}

	for _, a := range assets {
		name := "./" + a.Filename
		if err := writePart(w, partHeader(name, name, ""), a.Bytes); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// partHeader builds the exact Content-Disposition (and optional Content-Type)
// headers for one part. The textual form is part of the wire contract;
// downstream consumers parse it literally.
func partHeader(name, filename, contentType string) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	disposition := fmt.Sprintf(`form-data; name=%q`, name)
	if filename != "" {
		disposition += fmt.Sprintf(`; filename=%q`, filename)
	}
	h.Set("Content-Disposition", disposition)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

func writePart(w *multipart.Writer, header textproto.MIMEHeader, body []byte) error {
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(body)
	return err
}

// pickBoundary generates a random boundary token and verifies it against
// every part body, regenerating on the off chance a payload contains it.
func pickBoundary(mod CompiledModule, assets []ExternalAsset) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		boundary, err := randomBoundary()
		if err != nil {
			return "", err
		}
		if bytes.Contains(mod.Source, []byte(boundary)) {
			continue
		}
		collided := false
		for _, a := range assets {
			if bytes.Contains(a.Bytes, []byte(boundary)) {
				collided = true
				break
			}
		}
		if !collided {
			return boundary, nil
		}
	}
	return "", fmt.Errorf("could not generate a bundle boundary distinct from part contents")
}

func randomBoundary() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint64(b[:]) % uint64(1e16)
	return fmt.Sprintf("----formdata-undici-0.%016d", n), nil
}

// WriteOutput writes the packaged bundle, replacing any previous output
// atomically so a partially written bundle is never observable.
func WriteOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".edgekit-build-*")
	if err != nil {
		return fmt.Errorf("failed to stage output: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace output: %w", err)
	}
	return nil
}
