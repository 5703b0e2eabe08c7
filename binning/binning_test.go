package binning_test

import (
	"io/ioutil"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/covbin/binning"
	"github.com/grailbio/covbin/encoding/bamprovider"
	"github.com/grailbio/covbin/interval"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func writeFile(t *testing.T, path, data string) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	_, err = out.Writer(ctx).Write([]byte(data))
	assert.NoError(t, err)
	assert.NoError(t, out.Close(ctx))
}

func readFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	return string(data)
}

// readBins reads a file written by binning.WriteBins.
func readBins(t *testing.T, path string) ([]binning.GenomicBin, error) {
	in, err := interval.OpenBED(vcontext.Background(), path)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, in.Close()) }()
	var bins []binning.GenomicBin
	s := interval.NewBEDScanner(in, 5)
	for s.Scan() {
		if s.NToken() < 5 {
			return nil, fmt.Errorf("%s:%d: expected 5 columns, got %d", path, s.Line(), s.NToken())
		}
		b := binning.GenomicBin{Chrom: string(s.Token(0))}
		b.Start, err = strconv.Atoi(string(s.Token(1)))
		assert.NoError(t, err)
		b.Stop, err = strconv.Atoi(string(s.Token(2)))
		assert.NoError(t, err)
		count, err := strconv.ParseFloat(string(s.Token(3)), 64)
		assert.NoError(t, err)
		b.Count = int(count)
		b.GC, err = strconv.Atoi(string(s.Token(4)))
		assert.NoError(t, err)
		bins = append(bins, b)
	}
	return bins, s.Err()
}

func readBinSize(t *testing.T, outPath string) int {
	n, err := strconv.Atoi(readFile(t, binning.BinSizePath(outPath)))
	assert.NoError(t, err)
	return n
}

func TestReadPredefinedBins(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	path := filepath.Join(tmpdir, "bins.bed")
	writeFile(t, path, "#chrom\tstart\tstop\tgc\nchr2\t0\t100\t40\nchr2\t100\t200\nchr1\t5\t10\nshort\t1\n")
	bins, err := binning.ReadPredefinedBins(ctx, path)
	assert.NoError(t, err)
	assert.EQ(t, bins.Chroms, []string{"chr2", "chr1"})
	assert.EQ(t, bins.Bins["chr2"], []binning.GenomicBin{
		{Chrom: "chr2", Start: 0, Stop: 100, GC: 40},
		{Chrom: "chr2", Start: 100, Stop: 200, GC: -1},
	})
	assert.EQ(t, bins.Bins["chr1"], []binning.GenomicBin{{Chrom: "chr1", Start: 5, Stop: 10, GC: -1}})
	assert.False(t, bins.Has("short"))

	for _, test := range []struct {
		data string
		err  string
	}{
		{"chr1\t-1\t5\n", "non-negative"},
		{"chr1\t5\t5\n", "less than stop"},
		{"chr1\tx\t5\n", "invalid syntax"},
		{"chr1\t0\t5\tgc\n", "GC column"},
	} {
		writeFile(t, path, test.data)
		_, err := binning.ReadPredefinedBins(ctx, path)
		assert.Regexp(t, err, test.err)
	}
	_, err = binning.ReadPredefinedBins(ctx, filepath.Join(tmpdir, "missing.bed"))
	assert.True(t, err != nil)
}

func TestWriteBins(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	bins := []binning.GenomicBin{
		{Chrom: "chr1", Start: 0, Stop: 100, GC: 40, Count: 5},
		{Chrom: "chr1", Start: 100, Stop: 250, GC: 0, Count: 0},
		{Chrom: "chrX", Start: 7, Stop: 9, GC: 100, Count: 1234},
	}
	path := filepath.Join(tmpdir, "bins.txt")
	assert.NoError(t, binning.WriteBins(ctx, path, bins, 1))
	assert.EQ(t, readFile(t, path), "chr1\t0\t100\t5.00\t40\nchr1\t100\t250\t0.00\t0\nchrX\t7\t9\t1234.00\t100\n")

	for _, p := range []string{path, filepath.Join(tmpdir, "bins.txt.gz")} {
		assert.NoError(t, binning.WriteBins(ctx, p, bins, 2))
		got, err := readBins(t, p)
		assert.NoError(t, err, p)
		assert.EQ(t, got, bins, p)
	}

	assert.NoError(t, binning.WriteBins(ctx, path, nil, 1))
	assert.EQ(t, readFile(t, path), "")

	writeFile(t, path, "chr1\t0\t100\n")
	_, err := readBins(t, path)
	assert.Regexp(t, err, "expected 5 columns")
}

func TestBinSizeFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	out := filepath.Join(tmpdir, "sample.bins")
	assert.NoError(t, binning.WriteBinSize(ctx, out, 1234))
	assert.EQ(t, readFile(t, out+".binsize"), "1234")
	assert.EQ(t, readBinSize(t, out), 1234)
}

// testData holds the input files of an end-to-end run.
type testData struct {
	dir     string
	refPath string
	bamPath string
}

// newTestData writes a one-chromosome reference and an indexed BAM holding
// recs, which must be on the header's only reference.
func newTestData(t *testing.T, dir, seq string, recsFn func(ref *sam.Reference) []*sam.Record) testData {
	d := testData{
		dir:     dir,
		refPath: filepath.Join(dir, "ref.fa"),
		bamPath: filepath.Join(dir, "reads.bam"),
	}
	writeFile(t, d.refPath, ">chr1\n"+seq+"\n")
	ref, err := sam.NewReference("chr1", "", "", len(seq), nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	assert.NoError(t, err)
	assert.NoError(t, bamprovider.WriteIndexedBAM(d.bamPath, header, recsFn(ref)))
	return d
}

func (d testData) opts() binning.Opts {
	opts := binning.DefaultOpts
	opts.BAMPath = d.bamPath
	opts.ReferencePath = d.refPath
	opts.Parallelism = 2
	return opts
}

// mapAndMerge runs map mode on chr1, then bins the state with opts.
func (d testData) mapAndMerge(t *testing.T, mapOpts, opts binning.Opts) {
	ctx := vcontext.Background()
	statePath := filepath.Join(d.dir, "chr1.state")
	mapOpts.Chromosome = "chr1"
	mapOpts.OutPath = statePath
	assert.NoError(t, binning.Run(ctx, mapOpts))
	opts.IntermediatePaths = []string{statePath}
	assert.NoError(t, binning.Run(ctx, opts))
}

func readsEvery(n, step, readLen int) func(ref *sam.Reference) []*sam.Record {
	return func(ref *sam.Reference) []*sam.Record {
		var recs []*sam.Record
		cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, readLen)}
		for i := 0; i < n; i++ {
			recs = append(recs, bamprovider.NewRecord("r"+string(rune('a'+i%26)), ref, i*step, 0, -1, nil, cigar))
		}
		return recs
	}
}

func TestUniformCoverage(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	// 1000 usable positions and a lowercase tail, one read every 10 bases.
	seq := strings.Repeat("ACGT", 250) + strings.Repeat("acgt", 10)
	d := newTestData(t, tmpdir, seq, readsEvery(100, 10, 36))
	const want = "chr1\t0\t1000\t100.00\t50\n"

	outPath := filepath.Join(tmpdir, "out.bins")
	opts := d.opts()
	opts.OutPath = outPath
	d.mapAndMerge(t, d.opts(), opts)
	assert.EQ(t, readFile(t, outPath), want)

	opts.IntermediatePaths = []string{filepath.Join(tmpdir, "chr1.state")}
	opts.BinSizeOnly = true
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readBinSize(t, outPath), 1000)

	// No fragment lengths: all positions fall into GC bucket 0, whose ratio
	// is 1.
	opts = d.opts()
	opts.OutPath = outPath
	opts.Mode = binning.ModeGCContentWeighted
	opts.GCStatPath = filepath.Join(tmpdir, "out.gcstat")
	opts.IntermediatePaths = []string{filepath.Join(tmpdir, "chr1.state")}
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readFile(t, outPath), want)
	stats := strings.Split(strings.TrimSuffix(readFile(t, opts.GCStatPath), "\n"), "\n")
	assert.EQ(t, len(stats), binning.NumGCBuckets)
	assert.EQ(t, stats[0], "1040\t100\t1")

	opts = d.opts()
	opts.OutPath = outPath
	opts.SinglePass = true
	opts.Mode = binning.ModeBinary
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readFile(t, outPath), want)

	// Snappy-compressed state, explicit bin size.
	mapOpts := d.opts()
	mapOpts.StateCompression = "snappy"
	opts = d.opts()
	opts.OutPath = outPath
	opts.BinSize = 500
	d.mapAndMerge(t, mapOpts, opts)
	assert.EQ(t, readFile(t, outPath), "chr1\t0\t500\t50.00\t50\nchr1\t500\t1000\t50.00\t50\n")
}

// predefinedTestData has two predefined bins on a 100-base chromosome, each
// with 10 usable positions and 5 reads.
func predefinedTestData(t *testing.T, dir string) (testData, string) {
	seq := strings.Repeat("A", 10) + strings.Repeat("a", 40) + strings.Repeat("A", 10) + strings.Repeat("a", 40)
	d := newTestData(t, dir, seq, func(ref *sam.Reference) []*sam.Record {
		var recs []*sam.Record
		cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 35)}
		for _, pos := range []int{0, 2, 4, 6, 8, 50, 52, 54, 56, 58} {
			recs = append(recs, bamprovider.NewRecord("r", ref, pos, 0, -1, nil, cigar))
		}
		return recs
	})
	binsPath := filepath.Join(dir, "bins.bed")
	writeFile(t, binsPath, "chr1\t0\t50\nchr1\t50\t100\n")
	return d, binsPath
}

func TestPredefinedBins(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	d, binsPath := predefinedTestData(t, tmpdir)
	opts := d.opts()
	opts.OutPath = filepath.Join(tmpdir, "out.bins")
	opts.PredefinedBinsPath = binsPath
	opts.SinglePass = true
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readFile(t, opts.OutPath), "chr1\t0\t50\t5.00\t0\nchr1\t50\t100\t5.00\t0\n")
}

func TestExcludedRegions(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	d, binsPath := predefinedTestData(t, tmpdir)
	filterPath := filepath.Join(tmpdir, "exclude.bed")
	writeFile(t, filterPath, "chr1\t0\t10\n")

	mapOpts := d.opts()
	mapOpts.FilterPath = filterPath
	opts := d.opts()
	opts.OutPath = filepath.Join(tmpdir, "out.bins")
	opts.PredefinedBinsPath = binsPath
	d.mapAndMerge(t, mapOpts, opts)
	assert.EQ(t, readFile(t, opts.OutPath), "chr1\t0\t50\t0.00\t0\nchr1\t50\t100\t5.00\t0\n")

	// The first bin is 20% excluded.
	opts.FilterPath = filterPath
	opts.ExcludedBinFraction = binning.DefaultExcludedBinFraction
	d.mapAndMerge(t, mapOpts, opts)
	assert.EQ(t, readFile(t, opts.OutPath), "chr1\t50\t100\t5.00\t0\n")
}

func newPair(ref *sam.Reference, name string, pos, matePos, tlen int, flags sam.Flags) *sam.Record {
	r := bamprovider.NewRecord(name, ref, pos, sam.Paired|sam.ProperPair|flags, matePos, ref,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 50)})
	r.TempLen = tlen
	return r
}

func TestFragmentMode(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	seq := strings.Repeat("GC", 50) + strings.Repeat("AT", 100)
	d := newTestData(t, tmpdir, seq, func(ref *sam.Reference) []*sam.Record {
		return []*sam.Record{
			newPair(ref, "a", 10, 200, 250, sam.Read1),
			newPair(ref, "b", 20, 30, 60, sam.Read1),
			newPair(ref, "b", 30, 20, -60, sam.Read2),
			newPair(ref, "a", 200, 10, -250, sam.Read2),
		}
	})
	binsPath := filepath.Join(tmpdir, "bins.bed")
	writeFile(t, binsPath, "chr1\t0\t100\nchr1\t100\t200\nchr1\t200\t300\n")

	opts := d.opts()
	opts.Mode = binning.ModeFragment
	opts.PairedEnd = true
	opts.PredefinedBinsPath = binsPath
	opts.OutPath = filepath.Join(tmpdir, "out.bins")
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readFile(t, opts.OutPath), "chr1\t0\t100\t1.00\t100\nchr1\t100\t200\t1.00\t0\nchr1\t200\t300\t0.00\t0\n")

	// GC values in the bins file are kept.
	writeFile(t, binsPath, "chr1\t0\t100\t7\nchr1\t100\t200\t8\n")
	assert.NoError(t, binning.Run(ctx, opts))
	assert.EQ(t, readFile(t, opts.OutPath), "chr1\t0\t100\t1.00\t7\nchr1\t100\t200\t1.00\t8\n")

	writeFile(t, binsPath, "chr1\t0\t100\nchr9\t0\t100\n")
	assert.Regexp(t, binning.Run(ctx, opts), "not all chromosomes")

	writeFile(t, binsPath, "chr1\t270\t300\n")
	assert.Regexp(t, binning.Run(ctx, opts), "no passing-filter fragments")

	opts.PairedEnd = false
	assert.Regexp(t, binning.Run(ctx, opts), "paired-end reads are required")
	opts.PairedEnd = true
	opts.PredefinedBinsPath = ""
	assert.Regexp(t, binning.Run(ctx, opts), "predefined bins are required")
}

func TestRunErrors(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	d := newTestData(t, tmpdir, strings.Repeat("ACGT", 25), readsEvery(3, 10, 36))
	opts := d.opts()
	opts.OutPath = filepath.Join(tmpdir, "out")
	assert.Regexp(t, binning.Run(ctx, opts), "a chromosome is required")

	opts.Chromosome = "chr7"
	assert.Regexp(t, binning.Run(ctx, opts), "not found")

	opts.Chromosome = "chr1"
	opts.BinSize = 0
	assert.Regexp(t, binning.Run(ctx, opts), "bin size must be positive")

	opts = d.opts()
	opts.OutPath = filepath.Join(tmpdir, "out")
	opts.IntermediatePaths = []string{filepath.Join(tmpdir, "missing.state")}
	assert.True(t, binning.Run(ctx, opts) != nil)

	opts.ReferencePath = ""
	assert.Regexp(t, binning.Run(ctx, opts), "reference path is required")

	opts = d.opts()
	opts.OutPath = filepath.Join(tmpdir, "out")
	opts.SinglePass = true
	opts.ExcludedBinFraction = 2
	assert.Regexp(t, binning.Run(ctx, opts), "excluded bin fraction")
}
