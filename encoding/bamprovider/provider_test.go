package bamprovider_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/covbin/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func newTestHeader(t *testing.T) (*sam.Header, []*sam.Reference) {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 1000, nil, nil)
	require.NoError(t, err)
	chr3, err := sam.NewReference("chr3", "", "", 1000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2, chr3})
	require.NoError(t, err)
	return header, []*sam.Reference{chr1, chr2, chr3}
}

func readNames(t *testing.T, p bamprovider.Provider, ref *sam.Reference) []string {
	names := []string{}
	iter := p.NewIterator(ref)
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	require.NoError(t, iter.Err())
	require.NoError(t, iter.Close())
	return names
}

func TestBAM(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	header, refs := newTestHeader(t)
	cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 50)}
	recs := []*sam.Record{
		bamprovider.NewRecord("a", refs[0], 10, 0, -1, nil, cigar),
		bamprovider.NewRecord("b", refs[0], 20, 0, -1, nil, cigar),
		bamprovider.NewRecord("c", refs[2], 5, 0, -1, nil, cigar),
		bamprovider.NewRecord("d", refs[2], 500, 0, -1, nil, cigar),
		bamprovider.NewRecord("e", refs[2], 900, 0, -1, nil, cigar),
	}
	bamPath := filepath.Join(tmpDir, "test.bam")
	require.NoError(t, bamprovider.WriteIndexedBAM(bamPath, header, recs))

	p := bamprovider.NewProvider(bamPath, "")
	h, err := p.GetHeader()
	require.NoError(t, err)
	require.Equal(t, []string{"chr1", "chr2", "chr3"}, bamprovider.RefNames(h))

	// Repeat the test to exercise the iterator-reuse code path.
	for i := 0; i < 3; i++ {
		require.Equal(t, []string{"a", "b"}, readNames(t, p, h.Refs()[0]))
		require.Equal(t, []string{}, readNames(t, p, h.Refs()[1]))
		require.Equal(t, []string{"c", "d", "e"}, readNames(t, p, h.Refs()[2]))
	}
	require.NoError(t, p.Close())
}

func TestRefIterator(t *testing.T) {
	header, refs := newTestHeader(t)
	cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 50)}
	recs := []*sam.Record{
		bamprovider.NewRecord("a", refs[0], 10, 0, -1, nil, cigar),
		bamprovider.NewRecord("b", refs[1], 20, 0, -1, nil, cigar),
		bamprovider.NewRecord("c", refs[1], 30, 0, -1, nil, cigar),
	}
	p := bamprovider.NewFakeProvider(header, recs)
	iter := bamprovider.NewRefIterator(p, "chr2")
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	require.NoError(t, iter.Close())
	require.Equal(t, []string{"b", "c"}, names)

	iter = bamprovider.NewRefIterator(p, "chrX")
	require.False(t, iter.Scan())
	require.Regexp(t, "reference sequence index for chrX", iter.Close().Error())
	require.NoError(t, p.Close())
}

func TestMissingIndex(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	header, refs := newTestHeader(t)
	cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 50)}
	bamPath := filepath.Join(tmpDir, "test.bam")
	require.NoError(t, bamprovider.WriteIndexedBAM(bamPath, header,
		[]*sam.Record{bamprovider.NewRecord("a", refs[0], 10, 0, -1, nil, cigar)}))
	require.NoError(t, os.Remove(bamPath+".bai"))

	p := bamprovider.NewProvider(bamPath, "")
	iter := p.NewIterator(refs[0])
	require.False(t, iter.Scan())
	require.Regexp(t, "BAM index not found", iter.Close().Error())
	require.Regexp(t, "BAM index not found", p.Close().Error())
}

func TestError(t *testing.T) {
	p := bamprovider.NewProvider("nonexistent.bam", "nonexistent.bam.bai")
	_, err := p.GetHeader()
	require.Regexp(t, "no such file", err.Error())
	require.Error(t, p.Close())
}
