package epctx

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Manifest is the sidecar written next to an external cache binary. It
// records enough to validate the file later without a backend: a content
// digest plus provenance.
type Manifest struct {
	Digest     string   `json:"digest"`
	Size       int64    `json:"size"`
	SDKVersion string   `json:"sdk_version"`
	Source     string   `json:"source"`
	SessionID  string   `json:"session_id,omitempty"`
	Partitions []string `json:"partitions"`
}

// PayloadDigest computes the content digest recorded in manifests.
func PayloadDigest(data []byte) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(data))
}

// NewManifest builds a manifest for a compiled binary covering the given
// partitions.
func NewManifest(binary []byte, partitions []FusedPartition, sdkVersion, source, sessionID string) Manifest {
	names := make([]string, len(partitions))
	for i := range partitions {
		names[i] = partitions[i].NodeName
	}
	return Manifest{
		Digest:     PayloadDigest(binary),
		Size:       int64(len(binary)),
		SDKVersion: sdkVersion,
		Source:     source,
		SessionID:  sessionID,
		Partitions: names,
	}
}

// ManifestPath returns the sidecar path for a cache binary.
func ManifestPath(binPath string) string {
	return binPath + ".manifest.json"
}

// WriteManifest serializes the manifest next to the cache binary.
func WriteManifest(fs FileSystem, binPath string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal context manifest: %w", err)
	}
	if err := fs.WriteFile(ManifestPath(binPath), data); err != nil {
		return fmt.Errorf("failed to write context manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the sidecar for a cache binary.
func ReadManifest(binPath string) (Manifest, error) {
	data, err := os.ReadFile(ManifestPath(binPath))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read context manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse context manifest: %w", err)
	}
	return m, nil
}

// VerifyCacheBinary recomputes the digest of a cache binary and compares
// it against its manifest. Returns ErrDigestMismatch when the file no
// longer matches what the writer produced.
func VerifyCacheBinary(binPath string) error {
	m, err := ReadManifest(binPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(binPath)
	if err != nil {
		return fmt.Errorf("failed to read context cache file: %w", err)
	}
	if got := PayloadDigest(data); got != m.Digest {
		return fmt.Errorf("%w: %s: manifest %s, file %s", ErrDigestMismatch, binPath, m.Digest, got)
	}
	return nil
}
