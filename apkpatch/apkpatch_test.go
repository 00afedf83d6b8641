package apkpatch

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// buildMinimalZip assembles a single-entry ZIP (LFH + data + CDH + EOCD)
// with the given filename, compression method, stored bytes, and data
// CRC, returning the full image plus the offsets of interest.
func buildMinimalZip(t *testing.T, filename string, compressionMethod uint16, data []byte, crc uint32) (img []byte, lfhOffset, cdhOffset int) {
	t.Helper()

	lfh := make([]byte, 30+len(filename))
	copy(lfh, lfhSignature)
	binary.LittleEndian.PutUint16(lfh[8:10], compressionMethod)
	binary.LittleEndian.PutUint32(lfh[14:18], crc)
	binary.LittleEndian.PutUint32(lfh[18:22], uint32(len(data))) // compressed size
	binary.LittleEndian.PutUint32(lfh[22:26], uint32(len(data))) // uncompressed size
	binary.LittleEndian.PutUint16(lfh[26:28], uint16(len(filename)))
	copy(lfh[30:], filename)

	lfhOffset = 0
	img = append(img, lfh...)
	img = append(img, data...)

	cdhOffset = len(img)
	cdh := make([]byte, 46+len(filename))
	copy(cdh, cdhSignature)
	binary.LittleEndian.PutUint16(cdh[10:12], compressionMethod)
	binary.LittleEndian.PutUint32(cdh[16:20], crc)
	binary.LittleEndian.PutUint32(cdh[20:24], uint32(len(data))) // compressed size
	binary.LittleEndian.PutUint32(cdh[24:28], uint32(len(data))) // uncompressed size
	binary.LittleEndian.PutUint16(cdh[28:30], uint16(len(filename)))
	binary.LittleEndian.PutUint32(cdh[42:46], uint32(lfhOffset))
	copy(cdh[46:], filename)
	img = append(img, cdh...)

	eocdOffset := len(img)
	eocd := make([]byte, 22)
	copy(eocd, eocdSignature)
	binary.LittleEndian.PutUint16(eocd[10:12], 1)
	binary.LittleEndian.PutUint32(eocd[16:20], uint32(cdhOffset))
	img = append(img, eocd...)
	_ = eocdOffset

	return img, lfhOffset, cdhOffset
}

func TestFindAndParseEOCD(t *testing.T) {
	data := []byte("hello world")
	crc := crc32.ChecksumIEEE(data)
	img, _, cdhOffset := buildMinimalZip(t, "file.txt", 0, data, crc)

	eocdOffset, err := findEOCD(img)
	require.NoError(t, err)

	count, start := parseEOCD(img, eocdOffset)
	assert.Equal(t, 1, count)
	assert.Equal(t, cdhOffset, start)
}

func TestPatchInvalidCompression(t *testing.T) {
	data := make([]byte, 42)
	img, lfhOffset, cdhOffset := buildMinimalZip(t, "file.txt", 0xFFFF, data, 0)
	// Force compressed size to something wrong to mimic S2.
	binary.LittleEndian.PutUint32(img[cdhOffset+20:cdhOffset+24], 10)
	binary.LittleEndian.PutUint32(img[lfhOffset+18:lfhOffset+22], 10)

	patched := Patch(img, testLogger())
	require.True(t, patched)

	method := binary.LittleEndian.Uint16(img[cdhOffset+10 : cdhOffset+12])
	compressedSize := binary.LittleEndian.Uint32(img[cdhOffset+20 : cdhOffset+24])
	assert.EqualValues(t, 0, method)
	assert.EqualValues(t, 42, compressedSize)

	lfhMethod := binary.LittleEndian.Uint16(img[lfhOffset+8 : lfhOffset+10])
	lfhCompressedSize := binary.LittleEndian.Uint32(img[lfhOffset+18 : lfhOffset+22])
	assert.EqualValues(t, 0, lfhMethod)
	assert.EqualValues(t, 42, lfhCompressedSize)
}

func TestPatchManifestSignature(t *testing.T) {
	manifest := append([]byte{0x00}, []byte("rest-of-manifest-bytes")...)
	crc := crc32.ChecksumIEEE(manifest)
	img, lfhOffset, cdhOffset := buildMinimalZip(t, "AndroidManifest.xml", 0, manifest, crc)

	patched := Patch(img, testLogger())
	require.True(t, patched)

	dataOffset := lfhOffset + 30 + len("AndroidManifest.xml")
	assert.EqualValues(t, 0x03, img[dataOffset])

	expectedCRC := crc32.ChecksumIEEE(img[dataOffset : dataOffset+len(manifest)])
	cdhCRC := binary.LittleEndian.Uint32(img[cdhOffset+16 : cdhOffset+20])
	lfhCRC := binary.LittleEndian.Uint32(img[lfhOffset+14 : lfhOffset+18])
	assert.Equal(t, expectedCRC, cdhCRC)
	assert.Equal(t, expectedCRC, lfhCRC)
}

func TestPatchIsFixpoint(t *testing.T) {
	manifest := append([]byte{0x00}, []byte("manifest-body")...)
	crc := crc32.ChecksumIEEE(manifest)
	img, _, _ := buildMinimalZip(t, "AndroidManifest.xml", 0, manifest, crc)

	require.True(t, Patch(img, testLogger()))
	before := append([]byte(nil), img...)

	second := Patch(img, testLogger())
	assert.False(t, second)
	assert.Equal(t, before, img)
}

func TestPatchRecoversFromTruncatedImage(t *testing.T) {
	img := append([]byte(nil), eocdSignature...)
	patched := Patch(img, testLogger())
	assert.False(t, patched)
}

