// Package apkpatch neutralizes anti-analysis tampering directly inside an
// APK's ZIP container: invalid compression-method entries and a manifest
// whose first byte was stripped of its AXML signature. Patching happens
// in place over a writable memory-mapped image and never changes the
// file's length.
package apkpatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/rs/zerolog"
)

var (
	eocdSignature = []byte{0x50, 0x4b, 0x05, 0x06}
	cdhSignature  = []byte{0x50, 0x4b, 0x01, 0x02}
	lfhSignature  = []byte{0x50, 0x4b, 0x03, 0x04}
)

// ErrEOCDNotFound is returned by findEOCD when no image contains the EOCD
// signature.
var ErrEOCDNotFound = errors.New("apkpatch: EOCD signature not found")

// isValidCompressionMethod reports whether method is one of the ZIP
// format's defined compression methods: [0,20] (the stored/deflate family)
// or [93,99] (the newer LZMA/Zstandard/etc range).
func isValidCompressionMethod(method uint16) bool {
	return method <= 20 || (method >= 93 && method <= 99)
}

// Patch finds and repairs known anti-analysis techniques in img. It
// performs patches in place and never lets a malformed/truncated header
// propagate a panic out of the call — any unexpected failure is logged
// and treated as "no patch" (matching the outermost best-effort contract).
// Returns true iff any part of the image was patched.
func Patch(img []byte, logger zerolog.Logger) (patched bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("apkpatch: recovered while patching, reporting no patch")
			patched = false
		}
	}()

	eocdOffset, err := findEOCD(img)
	if err != nil {
		logger.Warn().Err(err).Msg("apkpatch: patch aborted")
		return false
	}

	cdhCount, cdhStart := parseEOCD(img, eocdOffset)

	compressionPatched := patchInvalidCompression(img, cdhCount, cdhStart, logger)
	manifestPatched := patchManifestSignature(img, cdhCount, cdhStart, logger)

	return compressionPatched || manifestPatched
}

// findEOCD searches img right-to-left for the EOCD signature.
func findEOCD(img []byte) (int, error) {
	offset := bytes.LastIndex(img, eocdSignature)
	if offset == -1 {
		return 0, ErrEOCDNotFound
	}
	return offset, nil
}

// parseEOCD reads the central-directory entry count and starting offset
// out of the EOCD record at eocdOffset.
func parseEOCD(img []byte, eocdOffset int) (cdhCount int, cdhStart int) {
	count := binary.LittleEndian.Uint16(img[eocdOffset+10 : eocdOffset+12])
	start := binary.LittleEndian.Uint32(img[eocdOffset+16 : eocdOffset+20])
	return int(count), int(start)
}

// cdhEntry is one yielded position during central-directory iteration.
type cdhEntry struct {
	offset   int
	sigValid bool
}

// iterCDH walks the central directory starting at cdhStart for cdhCount
// entries, yielding each entry's offset and whether its signature is
// valid. Iteration is tolerant: it always yields and always advances,
// even across an entry with a bad signature, because a malicious APK may
// overstate its count or misalign entries and the caller decides what to
// do with each entry.
func iterCDH(img []byte, cdhCount, cdhStart int) []cdhEntry {
	entries := make([]cdhEntry, 0, cdhCount)
	cursor := cdhStart

	for i := 0; i < cdhCount; i++ {
		sigValid := bytes.Equal(img[cursor:cursor+len(cdhSignature)], cdhSignature)
		entries = append(entries, cdhEntry{offset: cursor, sigValid: sigValid})

		filenameLen := binary.LittleEndian.Uint16(img[cursor+28 : cursor+30])
		extraLen := binary.LittleEndian.Uint16(img[cursor+30 : cursor+32])
		commentLen := binary.LittleEndian.Uint16(img[cursor+32 : cursor+34])
		cursor += 46 + int(filenameLen) + int(extraLen) + int(commentLen)
	}

	return entries
}

// patchInvalidCompression rewrites any CDH/LFH pair whose compression
// method is outside the valid set to STORED, setting compressed size to
// uncompressed size in both headers. Returns true iff any entry was
// patched.
func patchInvalidCompression(img []byte, cdhCount, cdhStart int, logger zerolog.Logger) bool {
	patched := false

	for _, entry := range iterCDH(img, cdhCount, cdhStart) {
		if !entry.sigValid {
			logger.Warn().Int("offset", entry.offset).Msg("apkpatch: invalid CDH signature, parsing anyway")
		}

		off := entry.offset
		compressionMethod := binary.LittleEndian.Uint16(img[off+10 : off+12])
		lfhOffset := int(binary.LittleEndian.Uint32(img[off+42 : off+46]))

		if isValidCompressionMethod(compressionMethod) {
			continue
		}

		binary.LittleEndian.PutUint16(img[off+10:off+12], 0)
		patched = true

		uncompressedSize := binary.LittleEndian.Uint32(img[off+24 : off+28])
		binary.LittleEndian.PutUint32(img[off+20:off+24], uncompressedSize)

		if !bytes.Equal(img[lfhOffset:lfhOffset+len(lfhSignature)], lfhSignature) {
			logger.Warn().Int("offset", lfhOffset).Msg("apkpatch: invalid LFH signature, patching anyway")
		}

		binary.LittleEndian.PutUint16(img[lfhOffset+8:lfhOffset+10], 0)
		binary.LittleEndian.PutUint32(img[lfhOffset+18:lfhOffset+22], uncompressedSize)
	}

	return patched
}

// patchManifestSignature finds the AndroidManifest.xml entry (if STORED)
// and, if its first data byte is not the AXML magic 0x03, patches it and
// recomputes the CRC-32 of the manifest into both headers. Entries that
// are not STORED are skipped. Processes at most one manifest entry and
// stops at the first STORED one, even if it needed no patching.
func patchManifestSignature(img []byte, cdhCount, cdhStart int, logger zerolog.Logger) bool {
	const expectedFileName = "AndroidManifest.xml"
	patched := false

	for _, entry := range iterCDH(img, cdhCount, cdhStart) {
		if !entry.sigValid {
			logger.Warn().Int("offset", entry.offset).Msg("apkpatch: invalid CDH signature, parsing anyway")
		}

		off := entry.offset
		nameOffset := off + 46
		if string(img[nameOffset:nameOffset+len(expectedFileName)]) != expectedFileName {
			continue
		}

		compressionMethod := binary.LittleEndian.Uint16(img[off+10 : off+12])
		if compressionMethod != 0 {
			continue
		}

		lfhOffset := int(binary.LittleEndian.Uint32(img[off+42 : off+46]))
		if !bytes.Equal(img[lfhOffset:lfhOffset+len(lfhSignature)], lfhSignature) {
			logger.Warn().Int("offset", lfhOffset).Msg("apkpatch: invalid LFH signature, patching anyway")
		}

		uncompressedSize := binary.LittleEndian.Uint32(img[off+24 : off+28])
		if uncompressedSize == 0 {
			logger.Info().Int("offset", off).Msg("apkpatch: uncompressed size 0, skipping signature check")
		}

		lfhFilenameLen := binary.LittleEndian.Uint16(img[lfhOffset+26 : lfhOffset+28])
		lfhExtraLen := binary.LittleEndian.Uint16(img[lfhOffset+28 : lfhOffset+30])
		dataOffset := lfhOffset + 30 + int(lfhFilenameLen) + int(lfhExtraLen)

		if img[dataOffset] == 0x03 {
			// Already patched; stop at the first manifest entry regardless.
			break
		}

		img[dataOffset] = 0x03
		patched = true

		newCRC := recomputeCRC(img, dataOffset, int(uncompressedSize))

		cdhCRCOffset := off + 16
		binary.LittleEndian.PutUint32(img[cdhCRCOffset:cdhCRCOffset+4], newCRC)

		lfhCRCOffset := lfhOffset + 14
		binary.LittleEndian.PutUint32(img[lfhCRCOffset:lfhCRCOffset+4], newCRC)

		break
	}

	return patched
}

// recomputeCRC streams the CRC-32 (IEEE) of img[dataOffset:dataOffset+size]
// in 64 KiB chunks, matching zlib.crc32's seeded/chunked behavior.
func recomputeCRC(img []byte, dataOffset, size int) uint32 {
	const chunkSize = 65536
	var crc uint32
	for i := 0; i < size; i += chunkSize {
		end := i + chunkSize
		if end > size {
			end = size
		}
		crc = crc32.Update(crc, crc32.IEEETable, img[dataOffset+i:dataOffset+end])
	}
	return crc
}
