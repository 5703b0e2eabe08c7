package binstate_test

import (
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/covbin/coverage"
	"github.com/grailbio/covbin/encoding/binstate"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func randomState(name string, n int, r *rand.Rand) *coverage.ChromState {
	s := coverage.NewChromState(name, n)
	for pos := 0; pos < n; pos++ {
		if r.Intn(3) != 0 {
			s.Mask.Set(pos)
		}
		s.Hits[pos] = byte(r.Intn(256))
		s.FragLens[pos] = int16(r.Intn(math.MaxInt16 + 1))
	}
	return s
}

func assertSameState(t *testing.T, got, want *coverage.ChromState) {
	assert.EQ(t, got.Name, want.Name)
	assert.EQ(t, got.Len(), want.Len())
	assert.EQ(t, binstate.PackMask(got.Mask), binstate.PackMask(want.Mask))
	for pos := 0; pos < want.Len(); pos++ {
		assert.EQ(t, got.Mask.Test(pos), want.Mask.Test(pos), "%s:%d", want.Name, pos)
	}
	assert.EQ(t, []byte(got.Hits), []byte(want.Hits))
	assert.EQ(t, []int16(got.FragLens), []int16(want.FragLens))
}

func TestPackMask(t *testing.T) {
	m := coverage.NewPositionMaskFromSeq("AcGtAAAAc")
	packed := binstate.PackMask(m)
	assert.EQ(t, packed, []byte{0xf5, 0x00})
	m2, err := binstate.UnpackMask(packed, 9)
	assert.NoError(t, err)
	assert.EQ(t, m2.Count(), 6)
	assert.False(t, m2.Test(8))

	_, err = binstate.UnpackMask(packed, 17)
	assert.Regexp(t, err, "needs 3 bytes")
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for _, n := range []int{0, 1, 7, 8, 9, 13, 64, 1001} {
		want := randomState("chr1", n, r)
		data, err := binstate.Marshal(want)
		assert.NoError(t, err)
		got, err := binstate.Unmarshal(data)
		assert.NoError(t, err, "n=%d", n)
		assertSameState(t, got, want)
	}
}

func TestCorruptRecord(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data, err := binstate.Marshal(randomState("chr2", 100, r))
	assert.NoError(t, err)

	for _, size := range []int{0, 5, 20, len(data) - 1} {
		_, err = binstate.Unmarshal(data[:size])
		assert.True(t, err != nil, "size %d", size)
	}

	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)/2] ^= 0x10
	_, err = binstate.Unmarshal(corrupt)
	assert.Regexp(t, err, "checksum mismatch")

	bad := coverage.NewChromState("chr3", 10)
	bad.FragLens = bad.FragLens[:9]
	_, err = binstate.Marshal(bad)
	assert.Regexp(t, err, "length mismatch")
}

func TestFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	r := rand.New(rand.NewSource(2))
	want := []*coverage.ChromState{
		randomState("chr1", 1000, r),
		randomState("chr2", 333, r),
		randomState("chrM", 5, r),
	}
	for _, compression := range []string{"", binstate.CompressionZstd, binstate.CompressionSnappy} {
		path := filepath.Join(tmpdir, "state"+compression+".bin")
		assert.NoError(t, binstate.Write(ctx, path, want, binstate.Opts{Compression: compression}))
		got, err := binstate.Read(ctx, path)
		assert.NoError(t, err)
		assert.EQ(t, len(got), len(want))
		for i := range want {
			assertSameState(t, got[i], want[i])
		}
	}

	path := filepath.Join(tmpdir, "empty.bin")
	assert.NoError(t, binstate.Write(ctx, path, nil, binstate.Opts{}))
	got, err := binstate.Read(ctx, path)
	assert.NoError(t, err)
	assert.EQ(t, len(got), 0)

	assert.Regexp(t, binstate.Write(ctx, path, want, binstate.Opts{Compression: "lz4"}), "unknown compression")
}

func TestTruncatedFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	r := rand.New(rand.NewSource(3))
	path := filepath.Join(tmpdir, "state.bin")
	states := []*coverage.ChromState{randomState("chr1", 5000, r), randomState("chr2", 5000, r)}
	assert.NoError(t, binstate.Write(ctx, path, states, binstate.Opts{Compression: binstate.CompressionSnappy}))
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	assert.NoError(t, ioutil.WriteFile(path, data[:len(data)/2], 0644))
	_, err = binstate.Read(ctx, path)
	assert.True(t, err != nil)

	notState := filepath.Join(tmpdir, "bins.txt")
	assert.NoError(t, ioutil.WriteFile(notState, []byte("chr1\t0\t100\t5\t40\n"), 0644))
	_, err = binstate.Read(ctx, notState)
	assert.True(t, err != nil)

	_, err = binstate.Read(ctx, filepath.Join(tmpdir, "missing.bin"))
	assert.True(t, err != nil)
}
