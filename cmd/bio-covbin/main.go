package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/covbin/binning"
)

// pathList is a repeatable string flag.
type pathList []string

func (l *pathList) String() string { return strings.Join(*l, ",") }

func (l *pathList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var (
	bamPath             = flag.String("bam", binning.DefaultOpts.BAMPath, "Input BAM path; must be coordinate sorted and indexed")
	bamIndexPath        = flag.String("index", binning.DefaultOpts.BAMIndexPath, "Input BAM index path. Defaults to bampath + .bai")
	referencePath       = flag.String("reference", binning.DefaultOpts.ReferencePath, "Reference FASTA; uppercase bases mark the start of unique k-mers")
	chromosome          = flag.String("chr", binning.DefaultOpts.Chromosome, "Map only this chromosome and write its intermediate state to -out")
	filterPath          = flag.String("filter", binning.DefaultOpts.FilterPath, "BED of regions to exclude")
	manifestPath        = flag.String("manifest", binning.DefaultOpts.ManifestPath, "BED of targeted regions (1-based, inclusive)")
	predefinedBinsPath  = flag.String("bins", binning.DefaultOpts.PredefinedBinsPath, "BED of predefined bins, with an optional GC column")
	outPath             = flag.String("out", binning.DefaultOpts.OutPath, "Output bins path, or intermediate state path with -chr. A .gz suffix compresses the bins")
	countsPerBin        = flag.Int("bindepth", binning.DefaultOpts.CountsPerBin, "Desired median count per bin")
	binSize             = flag.Int("binsize", binning.DefaultOpts.BinSize, "Usable positions per bin; <0 derives it from -bindepth")
	binSizeOnly         = flag.Bool("binsizeonly", binning.DefaultOpts.BinSizeOnly, "Write the bin size to <out>.binsize and exit")
	pairedEnd           = flag.Bool("paired-end", binning.DefaultOpts.PairedEnd, "The BAM holds paired-end alignments")
	mode                = flag.String("mode", binning.DefaultOpts.Mode.String(), "Coverage mode: binary, truncateddynamicrange, gccontentweighted or fragment")
	parallelism         = flag.Int("parallelism", binning.DefaultOpts.Parallelism, "Maximum number of concurrent chromosome jobs; 0 = runtime.NumCPU()")
	mapq                = flag.Int("mapq", binning.DefaultOpts.MapqThreshold, "Minimum MAPQ of both mates in fragment mode")
	gcStatPath          = flag.String("gcstat", binning.DefaultOpts.GCStatPath, "If set, write the GC model (expected, observed, ratio per GC bucket) here")
	excludedBinFraction = flag.Float64("excluded-bin-fraction", binning.DefaultOpts.ExcludedBinFraction, "Drop bins more than this fraction covered by -filter regions; 0 disables")
	stateCompression    = flag.String("state-compression", binning.DefaultOpts.StateCompression, "Intermediate state compression: zstd or snappy")
	singlePass          = flag.Bool("single-pass", binning.DefaultOpts.SinglePass, "Map all chromosomes and bin them in one process")
	intermediatePaths   pathList
)

func bioCovbinUsage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Var(&intermediatePaths, "infile", "Intermediate state file written with -chr; repeat once per chromosome")
	flag.Usage = bioCovbinUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("Unexpected positional arguments: '%s'", strings.Join(flag.Args(), " "))
	}
	m, err := binning.ParseMode(*mode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx := vcontext.Background()
	opts := binning.Opts{
		BAMPath:             *bamPath,
		BAMIndexPath:        *bamIndexPath,
		ReferencePath:       *referencePath,
		Chromosome:          *chromosome,
		IntermediatePaths:   intermediatePaths,
		FilterPath:          *filterPath,
		ManifestPath:        *manifestPath,
		PredefinedBinsPath:  *predefinedBinsPath,
		OutPath:             *outPath,
		CountsPerBin:        *countsPerBin,
		BinSize:             *binSize,
		BinSizeOnly:         *binSizeOnly,
		PairedEnd:           *pairedEnd,
		Mode:                m,
		Parallelism:         *parallelism,
		MapqThreshold:       *mapq,
		GCStatPath:          *gcStatPath,
		ExcludedBinFraction: *excludedBinFraction,
		StateCompression:    *stateCompression,
		SinglePass:          *singlePass,
	}
	if err := binning.Run(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
