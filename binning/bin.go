package binning

import (
	"context"
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/covbin/interval"
	"github.com/grailbio/hts/bgzf"
)

// GenomicBin is one output bin.  Start and Stop are 0-based, half open.
type GenomicBin struct {
	Chrom string
	Start int
	Stop  int
	// GC is the GC percentage of the bin's bases, in [0, 100], or -1 if not
	// known yet.
	GC int
	// Count is the aggregated coverage of the bin.
	Count int
}

// Len returns Stop - Start.
func (b GenomicBin) Len() int { return b.Stop - b.Start }

// ChromBins holds the predefined bins of each chromosome, in file order, along
// with the chromosomes in order of first appearance.
type ChromBins struct {
	Chroms []string
	Bins   map[string][]GenomicBin
}

// Has reports whether chrom has any bins.
func (c ChromBins) Has(chrom string) bool {
	_, ok := c.Bins[chrom]
	return ok
}

func parseInt(tok []byte) (int, error) {
	return strconv.Atoi(gunsafe.BytesToString(tok))
}

// ReadPredefinedBins reads bins from a BED file, optionally gzipped.  Lines
// with fewer than three columns are skipped.  An optional fourth column holds
// the GC percentage; GC is -1 when it is absent.  A negative start or an empty
// bin is an error.  Bins are expected to be sorted and disjoint within each
// chromosome.
func ReadPredefinedBins(ctx context.Context, path string) (bins ChromBins, err error) {
	in, err := interval.OpenBED(ctx, path)
	if err != nil {
		return bins, err
	}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = errors.E(e, "binning.ReadPredefinedBins", path)
		}
	}()
	bins.Bins = map[string][]GenomicBin{}
	s := interval.NewBEDScanner(in, 4)
	n := 0
	for s.Scan() {
		if s.NToken() < 3 {
			continue
		}
		b := GenomicBin{Chrom: string(s.Token(0)), GC: -1}
		if b.Start, err = parseInt(s.Token(1)); err != nil {
			return bins, fmt.Errorf("binning.ReadPredefinedBins: %s:%d: %v", path, s.Line(), err)
		}
		if b.Stop, err = parseInt(s.Token(2)); err != nil {
			return bins, fmt.Errorf("binning.ReadPredefinedBins: %s:%d: %v", path, s.Line(), err)
		}
		if b.Start < 0 {
			return bins, fmt.Errorf("binning.ReadPredefinedBins: %s:%d: start must be non-negative", path, s.Line())
		}
		if b.Start >= b.Stop {
			return bins, fmt.Errorf("binning.ReadPredefinedBins: %s:%d: start must be less than stop", path, s.Line())
		}
		if s.NToken() > 3 {
			if b.GC, err = parseInt(s.Token(3)); err != nil {
				return bins, fmt.Errorf("binning.ReadPredefinedBins: %s:%d: GC column: %v", path, s.Line(), err)
			}
		}
		if !bins.Has(b.Chrom) {
			bins.Chroms = append(bins.Chroms, b.Chrom)
		}
		bins.Bins[b.Chrom] = append(bins.Bins[b.Chrom], b)
		n++
	}
	if err := s.Err(); err != nil {
		return bins, errors.E(err, "binning.ReadPredefinedBins", path)
	}
	log.Printf("Loaded %d predefined bins for %d sequences from %s", n, len(bins.Chroms), path)
	return bins, nil
}

// WriteBins writes bins to path, one "chrom start stop count gc" line per bin.
// The count is printed with two decimals.  A path ending in .gz is bgzf
// compressed.
func WriteBins(ctx context.Context, path string, bins []GenomicBin, parallelism int) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "binning.WriteBins", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	var w *tsv.Writer
	if fileio.DetermineType(path) == fileio.Gzip {
		bgzfw := bgzf.NewWriter(out.Writer(ctx), parallelism)
		defer func() {
			if e := bgzfw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = tsv.NewWriter(bgzfw)
	} else {
		w = tsv.NewWriter(out.Writer(ctx))
	}
	for _, b := range bins {
		w.WriteString(b.Chrom)
		w.WriteInt64(int64(b.Start))
		w.WriteInt64(int64(b.Stop))
		w.WriteString(strconv.FormatFloat(float64(b.Count), 'f', 2, 64))
		w.WriteInt64(int64(b.GC))
		if err = w.EndLine(); err != nil {
			return errors.E(err, "binning.WriteBins", path)
		}
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, "binning.WriteBins", path)
	}
	log.Printf("Wrote %d bins to %s", len(bins), path)
	return nil
}

// BinSizePath returns the path of the bin size file written next to outPath.
func BinSizePath(outPath string) string { return outPath + ".binsize" }

// WriteBinSize writes binSize as decimal text to BinSizePath(outPath).
func WriteBinSize(ctx context.Context, outPath string, binSize int) (err error) {
	path := BinSizePath(outPath)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "binning.WriteBinSize", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = out.Writer(ctx).Write([]byte(strconv.Itoa(binSize)))
	return err
}
