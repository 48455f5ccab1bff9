package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
		changed  bool
	}{
		{"phiX174", "phiX174", false},
		{"UniVec(core)", "UniVeccore", true},
		{"gi|9626372|ref|NC_001422.1|", "gi|9626372|ref|NC_001422.1|", false},
		{"chr 1,alt", "chr1alt", true},
		{`a"b'c`, "abc", true},
	}
	for _, tt := range tests {
		got, changed := SanitizeName(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.changed, changed, tt.in)
	}
	for c := 0; c < 256; c++ {
		if ValidNameChar(byte(c)) {
			assert.NotContains(t, "(){}[]<>,\"' \t\\", string(rune(c)))
		}
	}
}

func TestSanitizeHeader(t *testing.T) {
	in := "@HD\tVN:1.6\tSO:coordinate\n" +
		"@SQ\tSN:phiX174\tLN:5386\n" +
		"@SQ\tSN:UniVec(core)\tLN:1200\tM5:abc\n" +
		"@CO\tSN:left(alone)\n" +
		"@PG\tID:bowtie2\tCL:\"bowtie2 -x idx (x)\"\n"

	out, changed, err := SanitizeHeader([]byte(in))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "@HD\tVN:1.6\tSO:coordinate\n"+
		"@SQ\tSN:phiX174\tLN:5386\n"+
		"@SQ\tSN:UniVeccore\tLN:1200\tM5:abc\n"+
		"@CO\tSN:left(alone)\n"+
		"@PG\tID:bowtie2\tCL:\"bowtie2 -x idx (x)\"\n", string(out))

	names := SequenceNames(out)
	assert.Len(t, names, len(SequenceNames([]byte(in))))
	for _, n := range names {
		for i := 0; i < len(n); i++ {
			assert.True(t, ValidNameChar(n[i]), "%q in %q", n[i], n)
		}
	}
}

func TestSanitizeHeaderUnchanged(t *testing.T) {
	in := []byte("@HD\tVN:1.6\r\n@SQ\tSN:phiX174\tLN:5386\r\n@SQ\tSN:phiX174\tLN:5386\n")
	out, changed, err := SanitizeHeader(in)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, in, out)
}

func TestSanitizeHeaderCRLF(t *testing.T) {
	out, changed, err := SanitizeHeader([]byte("@SQ\tSN:a(b)\tLN:3\r\n"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "@SQ\tSN:ab\tLN:3\r\n", string(out))
}

func TestSanitizeHeaderErrors(t *testing.T) {
	_, _, err := SanitizeHeader([]byte("@SQ\tSN:a(b)\tLN:3\n@SQ\tSN:ab\tLN:3\n"))
	assert.ErrorContains(t, err, "not unique")

	_, _, err = SanitizeHeader([]byte("@SQ\tSN:()\tLN:3\n"))
	assert.ErrorContains(t, err, "no valid characters")
}
