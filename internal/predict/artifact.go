// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package predict

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// maxArtifactSize bounds decompression of a stored artifact.
const maxArtifactSize = 64 << 20

// MarshalArtifact serializes an ensemble as gzip-compressed JSON. The checksum is the
// SHA-256 of the uncompressed JSON and is stored alongside the artifact.
func MarshalArtifact(e *Ensemble) (data []byte, checksum string, err error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, "", fmt.Errorf("encode model: %w", err)
	}

	hash := sha256.Sum256(raw)
	checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize compression: %w", err)
	}
	return compressed.Bytes(), checksum, nil
}

// UnmarshalArtifact reverses MarshalArtifact, verifying the checksum and the feature
// layout before returning the ensemble.
func UnmarshalArtifact(data []byte, checksum string) (*Ensemble, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(io.LimitReader(gzr, maxArtifactSize))
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if got := hex.EncodeToString(hash[:]); got != checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", checksum, got)
	}

	var e Ensemble
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := validateEnsemble(&e); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &e, nil
}
