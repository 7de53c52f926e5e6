// Package hashing derives content and perceptual fingerprints from photos.
//
// The content hash (SHA-256 of the raw bytes) identifies exact duplicates.
// The two perceptual hashes survive re-encoding and resizing: a 64-bit
// difference hash capturing horizontal gradients and a 64-bit DCT-based
// perception hash capturing low-frequency structure.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/corona10/goimagehash"

	"snapsync/internal/services"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Fingerprint is everything deduplication needs to compare two photos.
type Fingerprint struct {
	ContentHash string
	DHash       uint64
	PHash       uint64
	Width       int
	Height      int
}

// PixelCount reports the decoded resolution, used to rank duplicate-group
// representatives.
func (f Fingerprint) PixelCount() int64 {
	return int64(f.Width) * int64(f.Height)
}

// ComputeFile fingerprints the photo at path. The file is read once; hashing
// and decoding both work from the same buffer.
func ComputeFile(path string) (*Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrHashing, "hashing", "compute", "open source file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, services.Wrap(services.ErrHashing, "hashing", "compute", "read source file", err)
	}
	return Compute(data)
}

// Compute fingerprints a photo already held in memory.
func Compute(data []byte) (*Fingerprint, error) {
	sum := sha256.Sum256(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrHashing, "hashing", "compute", "decode image", err)
	}

	dhash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, services.Wrap(services.ErrHashing, "hashing", "compute", fmt.Sprintf("difference hash %s image", format), err)
	}
	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, services.Wrap(services.ErrHashing, "hashing", "compute", fmt.Sprintf("perception hash %s image", format), err)
	}

	bounds := img.Bounds()
	return &Fingerprint{
		ContentHash: hex.EncodeToString(sum[:]),
		DHash:       dhash.GetHash(),
		PHash:       phash.GetHash(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// hammingDistance counts differing bits between two 64-bit hashes.
func hammingDistance(a, b uint64) int {
	diff := a ^ b
	count := 0
	for diff != 0 {
		diff &= diff - 1
		count++
	}
	return count
}

// Distance returns the weighted, normalized perceptual distance between two
// fingerprints in [0, 1]. Weights must sum to 1; config validation enforces
// that before any comparison runs.
func Distance(a, b Fingerprint, dhashWeight, phashWeight float64) float64 {
	dPart := float64(hammingDistance(a.DHash, b.DHash)) / 64.0
	pPart := float64(hammingDistance(a.PHash, b.PHash)) / 64.0
	return dhashWeight*dPart + phashWeight*pPart
}
