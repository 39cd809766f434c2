// Package fingerprint derives the deterministic ArtifactKey (§4.C1) from a
// render.Request: a pair of stable 64-bit hashes rendered as lowercase hex,
// one for the request's origin and one for the fields that influence the
// rendered bytes. Hashes must be stable across process restarts, so this
// package never touches Go's randomized map iteration or a seeded hasher —
// everything is written to a fixed-order buffer and hashed with xxhash,
// which uses a constant seed.
package fingerprint

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// Key returns the two hex components of a render.Request's ArtifactKey:
// origin_hash and request_hash. Callers join them as "origin/request" and
// append the extension for r.Kind/r.Format.
func Key(r render.Request) (originHash, requestHash string, err error) {
	origin, err := r.Origin()
	if err != nil {
		return "", "", err
	}
	originHash = hashString(origin)
	requestHash = fmt.Sprintf("%016x", requestDigest(r))
	return originHash, requestHash, nil
}

func hashString(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// requestDigest hashes every field that affects the rendered output. ttl is
// deliberately excluded: freshness policy is orthogonal to artifact identity.
func requestDigest(r render.Request) uint64 {
	h := xxhash.New()
	writeString(h, r.URL)
	writeString(h, string(r.Kind))
	writeString(h, string(r.Format))
	writeInt(h, r.Quality)
	writeInt(h, r.Width)
	writeInt(h, r.Height)
	writeInt(h, r.Scale)
	writeBool(h, r.FullPage)
	writeBool(h, r.OmitBackground)
	return h.Sum64()
}

func writeString(h *xxhash.Digest, s string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeInt(h *xxhash.Digest, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(n)))
	h.Write(buf[:])
}

func writeBool(h *xxhash.Digest, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}
