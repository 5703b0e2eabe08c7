package binning

import (
	"context"
	"fmt"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/covbin/coverage"
	"github.com/grailbio/covbin/encoding/bamprovider"
	"github.com/grailbio/covbin/encoding/binstate"
	"github.com/grailbio/covbin/interval"
)

// Opts configures Run.
type Opts struct {
	// BAMPath is the coordinate-sorted, indexed BAM.  Required in map,
	// single-pass and fragment modes.
	BAMPath string
	// BAMIndexPath defaults to BAMPath + ".bai".
	BAMIndexPath string
	// ReferencePath is the FASTA whose uppercase bases mark unique k-mer starts.
	ReferencePath string
	// Chromosome selects the chromosome processed in map mode.
	Chromosome string
	// IntermediatePaths lists the state files written by map runs.  When
	// nonempty, Run merges them and bins the result.
	IntermediatePaths []string
	// FilterPath is a BED of excluded regions.
	FilterPath string
	// ManifestPath is a BED of targeted regions, 1-based inclusive.
	ManifestPath string
	// PredefinedBinsPath is a BED of bins to fill in instead of sizing bins by
	// usable position count.
	PredefinedBinsPath string
	// OutPath is the bin file, or the state file in map mode.
	OutPath string
	// CountsPerBin is the desired median hit count per bin.
	CountsPerBin int
	// BinSize is the number of usable positions per bin.  Values <= 0 derive
	// it from CountsPerBin.
	BinSize int
	// BinSizeOnly writes the bin size to BinSizePath(OutPath) and stops.
	BinSizeOnly bool
	PairedEnd   bool
	Mode        Mode
	// Parallelism is the number of concurrent chromosome jobs.  Values <= 0
	// mean runtime.NumCPU().
	Parallelism int
	// MapqThreshold is the minimum MAPQ of a fragment's reads in fragment
	// mode.
	MapqThreshold int
	// GCStatPath, if nonempty, receives the GC model.
	GCStatPath string
	// ExcludedBinFraction, when positive, drops output bins more than this
	// fraction covered by the regions of FilterPath.
	ExcludedBinFraction float64
	// StateCompression is the compression of state files written in map mode.
	StateCompression string
	// SinglePass maps every reference chromosome in-process and bins the
	// result without intermediate files.
	SinglePass bool
}

// DefaultOpts holds the default values of Opts.
var DefaultOpts = Opts{
	CountsPerBin:        100,
	BinSize:             -1,
	Mode:                ModeTruncatedDynamicRange,
	Parallelism:         0,
	MapqThreshold:       DefaultMapqThreshold,
	ExcludedBinFraction: 0,
	StateCompression:    binstate.CompressionZstd,
}

// mergeParallelism bounds the number of state files decoded at once.
const mergeParallelism = 1

func (o *Opts) validate() error {
	if o.ReferencePath == "" {
		return fmt.Errorf("binning.Run: reference path is required")
	}
	if o.OutPath == "" {
		return fmt.Errorf("binning.Run: output path is required")
	}
	if o.ExcludedBinFraction < 0 || o.ExcludedBinFraction > 1 {
		return fmt.Errorf("binning.Run: excluded bin fraction %g is not in [0, 1]", o.ExcludedBinFraction)
	}
	if o.Mode == ModeFragment {
		if o.PredefinedBinsPath == "" {
			return fmt.Errorf("binning.Run: predefined bins are required for fragment binning")
		}
		if !o.PairedEnd {
			return fmt.Errorf("binning.Run: paired-end reads are required for fragment binning")
		}
		if o.BAMPath == "" {
			return fmt.Errorf("binning.Run: BAM path is required for fragment binning")
		}
		return nil
	}
	if o.Mode.aggregator() == nil {
		return fmt.Errorf("binning.Run: unknown coverage mode %v", o.Mode)
	}
	if o.BinSize == 0 {
		return fmt.Errorf("binning.Run: bin size must be positive, or negative to derive it")
	}
	if o.CountsPerBin < 1 {
		return fmt.Errorf("binning.Run: counts per bin must be positive, got %d", o.CountsPerBin)
	}
	if len(o.IntermediatePaths) == 0 {
		if o.BAMPath == "" {
			return fmt.Errorf("binning.Run: BAM path is required")
		}
		if o.Chromosome == "" && !o.SinglePass {
			return fmt.Errorf("binning.Run: a chromosome is required unless intermediate files are given or single-pass mode is set")
		}
	}
	return nil
}

// parallelFor calls fn(i) for i in [0, n), splitting the range into at most
// parallelism contiguous jobs.  It returns the first error.
func parallelFor(parallelism, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > n {
		parallelism = n
	}
	return traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * n) / parallelism
		endIdx := ((jobIdx + 1) * n) / parallelism
		for i := startIdx; i < endIdx; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run executes one invocation of the binning engine:
//
//  - ModeFragment: count read-pair fragments into the predefined bins.
//  - No IntermediatePaths, not SinglePass: map opts.Chromosome and write its
//    state to OutPath.
//  - SinglePass: map every chromosome, then bin.
//  - Otherwise: merge the state files, then bin.
func Run(ctx context.Context, opts Opts) error {
	if err := opts.validate(); err != nil {
		return err
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if opts.Mode == ModeFragment {
		return runFragment(ctx, &opts, parallelism)
	}
	if len(opts.IntermediatePaths) == 0 && !opts.SinglePass {
		return runMap(ctx, &opts)
	}
	arena := coverage.NewArena()
	var chroms []coverage.Chromosome
	if len(opts.IntermediatePaths) > 0 {
		if err := mergeStates(ctx, opts.IntermediatePaths, arena); err != nil {
			return err
		}
	} else {
		var err error
		if chroms, err = mapAll(ctx, &opts, arena, parallelism); err != nil {
			return err
		}
	}
	return binArena(ctx, &opts, arena, chroms, parallelism)
}

func newProvider(opts *Opts) bamprovider.Provider {
	return bamprovider.NewProvider(opts.BAMPath, opts.BAMIndexPath)
}

func closeProvider(p bamprovider.Provider, err *error) {
	if e := p.Close(); e != nil && *err == nil {
		*err = e
	}
}

// loadRegions reads a BED of regions, or returns nil if path is empty.
func loadRegions(ctx context.Context, path string, oneBased bool) (*interval.BEDUnion, error) {
	if path == "" {
		return nil, nil
	}
	u, err := interval.NewBEDUnionFromPath(ctx, path, interval.NewBEDOpts{OneBasedInput: oneBased})
	if err != nil {
		return nil, fmt.Errorf("binning: %s: %v", path, err)
	}
	return &u, nil
}

// mapChrom builds the screened coverage state of one chromosome.
func mapChrom(p bamprovider.Provider, c coverage.Chromosome, filter *interval.BEDUnion, opts *Opts) (*coverage.ChromState, error) {
	state := coverage.NewChromStateFromSeq(c.Name, c.Seq)
	scanOpts := coverage.ScanOpts{PairedEnd: opts.PairedEnd, Binary: opts.Mode == ModeBinary}
	if err := coverage.ScanAlignments(p, state, scanOpts); err != nil {
		return nil, err
	}
	if filter != nil {
		coverage.ExcludeRegions(state, filter)
	}
	state.Screen()
	return state, nil
}

func runMap(ctx context.Context, opts *Opts) (err error) {
	chroms, err := coverage.ReadReference(ctx, opts.ReferencePath, opts.Chromosome)
	if err != nil {
		return err
	}
	log.Printf("Loaded %s from %s (%d bases)", opts.Chromosome, opts.ReferencePath, len(chroms[0].Seq))
	filter, err := loadRegions(ctx, opts.FilterPath, false)
	if err != nil {
		return err
	}
	p := newProvider(opts)
	defer closeProvider(p, &err)
	state, err := mapChrom(p, chroms[0], filter, opts)
	if err != nil {
		return err
	}
	if err = binstate.Write(ctx, opts.OutPath, []*coverage.ChromState{state},
		binstate.Opts{Compression: opts.StateCompression}); err != nil {
		return err
	}
	log.Printf("Wrote the state of %s to %s", state.Name, opts.OutPath)
	return nil
}

// mapAll maps the reference chromosomes present in the BAM header into
// arena.  It returns the reference.
func mapAll(ctx context.Context, opts *Opts, arena *coverage.Arena, parallelism int) (chroms []coverage.Chromosome, err error) {
	if chroms, err = coverage.ReadReference(ctx, opts.ReferencePath, ""); err != nil {
		return nil, err
	}
	filter, err := loadRegions(ctx, opts.FilterPath, false)
	if err != nil {
		return nil, err
	}
	p := newProvider(opts)
	defer closeProvider(p, &err)
	header, err := p.GetHeader()
	if err != nil {
		return nil, err
	}
	var mapped []coverage.Chromosome
	for _, c := range chroms {
		if bamprovider.RefByName(header, c.Name) == nil {
			log.Printf("%s: not in %s, skipped", c.Name, opts.BAMPath)
			continue
		}
		mapped = append(mapped, c)
	}
	err = parallelFor(parallelism, len(mapped), func(i int) error {
		state, err := mapChrom(p, mapped[i], filter, opts)
		if err != nil {
			return err
		}
		return arena.Add(state)
	})
	return chroms, err
}

// mergeStates reads the state files into arena.
func mergeStates(ctx context.Context, paths []string, arena *coverage.Arena) error {
	log.Printf("Start deserialization of %d file(s)", len(paths))
	err := parallelFor(mergeParallelism, len(paths), func(i int) error {
		states, err := binstate.Read(ctx, paths[i])
		if err != nil {
			return err
		}
		log.Debug.Printf("%s: %d chromosome(s)", paths[i], len(states))
		return arena.Add(states...)
	})
	if err != nil {
		return err
	}
	log.Printf("Deserialization complete: %d chromosome(s)", arena.Len())
	return nil
}

// walkJob is the binning of one chromosome.
type walkJob struct {
	name  string
	seq   string
	state *coverage.ChromState
	gc    []byte
	bins  []GenomicBin
}

// binArena bins the merged states and writes the output.  chroms is the
// reference; it is read from opts.ReferencePath when nil.
func binArena(ctx context.Context, opts *Opts, arena *coverage.Arena, chroms []coverage.Chromosome, parallelism int) (err error) {
	if arena.Len() == 0 {
		return fmt.Errorf("binning.Run: no chromosome state to bin")
	}
	targets, err := loadRegions(ctx, opts.ManifestPath, true)
	if err != nil {
		return err
	}
	binSize := opts.BinSize
	if binSize <= 0 {
		if binSize, err = PossibleCountPerBin(opts.CountsPerBin, arena, targets, parallelism); err != nil {
			return err
		}
	}
	log.Printf("Bin size: %d usable positions", binSize)
	if opts.BinSizeOnly {
		return WriteBinSize(ctx, opts.OutPath, binSize)
	}
	var predefined ChromBins
	if opts.PredefinedBinsPath != "" {
		if predefined, err = ReadPredefinedBins(ctx, opts.PredefinedBinsPath); err != nil {
			return err
		}
	}
	if chroms == nil {
		if chroms, err = coverage.ReadReference(ctx, opts.ReferencePath, ""); err != nil {
			return err
		}
	}

	inRef := map[string]bool{}
	for _, c := range chroms {
		inRef[c.Name] = true
	}
	for _, name := range arena.Names() {
		if !inRef[name] {
			return fmt.Errorf("binning.Run: chromosome %s not found in %s", name, opts.ReferencePath)
		}
	}
	var jobs []*walkJob
	for _, c := range chroms {
		state := arena.Get(c.Name)
		if state == nil {
			continue
		}
		if state.Len() != len(c.Seq) {
			return fmt.Errorf("binning.Run: %s: state length %d does not match the reference length %d",
				c.Name, state.Len(), len(c.Seq))
		}
		job := &walkJob{name: c.Name, seq: c.Seq, state: state}
		if opts.PredefinedBinsPath != "" {
			if !predefined.Has(c.Name) {
				continue
			}
			job.bins = predefined.Bins[c.Name]
		}
		jobs = append(jobs, job)
	}

	var ratio *[NumGCBuckets]float64
	if opts.Mode.needsRatios() || opts.GCStatPath != "" {
		model, err := buildGCModel(jobs, arena.MeanFragmentLength(), targets, parallelism)
		if err != nil {
			return err
		}
		if opts.GCStatPath != "" {
			if err = model.WriteStats(ctx, opts.GCStatPath); err != nil {
				return err
			}
		}
		if opts.Mode.needsRatios() {
			ratio = &model.Ratio
		}
	}

	agg := opts.Mode.aggregator()
	err = parallelFor(parallelism, len(jobs), func(i int) error {
		j := jobs[i]
		w := &chromWalk{seq: j.seq, state: j.state, gc: j.gc, ratio: ratio, agg: agg}
		if opts.PredefinedBinsPath != "" {
			binPredefined(w, j.bins)
		} else {
			j.bins = binByCount(j.name, w, binSize)
		}
		log.Debug.Printf("%s: %d bins", j.name, len(j.bins))
		return nil
	})
	if err != nil {
		return err
	}
	var bins []GenomicBin
	for _, j := range jobs {
		bins = append(bins, j.bins...)
	}
	if bins, err = filterBins(ctx, opts, bins); err != nil {
		return err
	}
	return WriteBins(ctx, opts.OutPath, bins, parallelism)
}

// buildGCModel computes the per-position GC content of each job and the GC
// model of the hits, restricted to targets when non-nil.
func buildGCModel(jobs []*walkJob, meanFragLen int16, targets *interval.BEDUnion, parallelism int) (*GCModel, error) {
	log.Printf("Mean fragment length: %d", meanFragLen)
	hists := make([]GCHistogram, len(jobs))
	err := parallelFor(parallelism, len(jobs), func(i int) error {
		j := jobs[i]
		j.gc = ReadGCContent(j.seq, j.state.FragLens, meanFragLen)
		if targets == nil {
			hists[i].AddChrom(j.gc, j.state.Hits, nil)
		} else if targets.HasChr(j.name) {
			hists[i].AddChrom(j.gc, j.state.Hits, targets.Endpoints(j.name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var total GCHistogram
	for i := range hists {
		total.Merge(&hists[i])
	}
	return NewGCModel(total), nil
}

// filterBins applies the excluded-bin filter when it is enabled.
func filterBins(ctx context.Context, opts *Opts, bins []GenomicBin) ([]GenomicBin, error) {
	if opts.ExcludedBinFraction <= 0 || opts.FilterPath == "" {
		return bins, nil
	}
	regions, err := loadRegions(ctx, opts.FilterPath, false)
	if err != nil {
		return nil, err
	}
	idx, err := interval.NewOverlapIndex(regions)
	if err != nil {
		return nil, err
	}
	n := len(bins)
	bins = FilterExcludedBins(bins, idx, opts.ExcludedBinFraction)
	log.Printf("Dropped %d of %d bins overlapping excluded regions", n-len(bins), n)
	return bins, nil
}

func runFragment(ctx context.Context, opts *Opts, parallelism int) (err error) {
	predefined, err := ReadPredefinedBins(ctx, opts.PredefinedBinsPath)
	if err != nil {
		return err
	}
	p := newProvider(opts)
	defer closeProvider(p, &err)
	header, err := p.GetHeader()
	if err != nil {
		return err
	}
	var chroms []string
	for _, name := range bamprovider.RefNames(header) {
		if predefined.Has(name) {
			chroms = append(chroms, name)
		}
	}
	if len(chroms) != len(predefined.Chroms) {
		return fmt.Errorf("binning.Run: not all chromosomes in %s are found in %s", opts.PredefinedBinsPath, opts.BAMPath)
	}
	usable := make([]int64, len(chroms))
	err = parallelFor(parallelism, len(chroms), func(i int) error {
		bins := predefined.Bins[chroms[i]]
		if needsGC(bins) {
			ref, err := coverage.ReadReference(ctx, opts.ReferencePath, chroms[i])
			if err != nil {
				return err
			}
			binGC(ref[0].Seq, bins)
		}
		n, err := binFragments(p, chroms[i], bins, opts.MapqThreshold)
		usable[i] = n
		return err
	})
	if err != nil {
		return err
	}
	var total int64
	for _, n := range usable {
		total += n
	}
	if total == 0 {
		return fmt.Errorf("binning.Run: no passing-filter fragments overlapping bins are found in %s", opts.BAMPath)
	}
	log.Printf("%d usable fragments", total)
	var bins []GenomicBin
	for _, name := range chroms {
		bins = append(bins, predefined.Bins[name]...)
	}
	if bins, err = filterBins(ctx, opts, bins); err != nil {
		return err
	}
	return WriteBins(ctx, opts.OutPath, bins, parallelism)
}
