package binstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/covbin/coverage"
)

const (
	// <versionHeader, version> is stored in the recordio header.
	versionHeader = "covbinversion"
	version       = "COVBIN_STATE_V1"
	// compressionHeader names the per-record compression, one of
	// the Compression* constants.
	compressionHeader = "covbincompression"
	// chromosomesHeader lists the chromosomes of the file, tab separated.
	chromosomesHeader = "covbinchromosomes"
)

const (
	// CompressionZstd compresses whole recordio blocks with zstd.
	CompressionZstd = "zstd"
	// CompressionSnappy compresses each record with snappy.
	CompressionSnappy = "snappy"
)

// Opts controls Write.
type Opts struct {
	// Compression is CompressionZstd (default if empty) or CompressionSnappy.
	Compression string
}

// Write stores states in a recordio file at path, one record per chromosome,
// in order.  The trailer holds the record count.
func Write(ctx context.Context, path string, states []*coverage.ChromState, opts Opts) (err error) {
	if opts.Compression == "" {
		opts.Compression = CompressionZstd
	}
	var transformers []string
	switch opts.Compression {
	case CompressionZstd:
		recordiozstd.Init()
		transformers = []string{recordiozstd.Name}
	case CompressionSnappy:
	default:
		return fmt.Errorf("binstate.Write: unknown compression %q", opts.Compression)
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.Name
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "binstate.Write", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: transformers,
	})
	w.AddHeader(versionHeader, version)
	w.AddHeader(compressionHeader, opts.Compression)
	w.AddHeader(chromosomesHeader, strings.Join(names, "\t"))
	w.AddHeader(recordio.KeyTrailer, true)
	for _, s := range states {
		data, err := Marshal(s)
		if err != nil {
			return errors.E(err, "binstate.Write", path)
		}
		if opts.Compression == CompressionSnappy {
			data = snappy.Encode(nil, data)
		}
		w.Append(data)
	}
	w.SetTrailer(proto.EncodeVarint(uint64(len(states))))
	if err := w.Finish(); err != nil {
		return errors.E(err, "binstate.Write", path)
	}
	log.Debug.Printf("binstate.Write: %s: wrote %d chromosome(s)", path, len(states))
	return nil
}

// Read loads all chromosome states stored in the file at path by Write.
func Read(ctx context.Context, path string) (states []*coverage.ChromState, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "binstate.Read", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	recordiozstd.Init()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	var (
		versionFound bool
		compression  string
		names        []string
	)
	for _, kv := range r.Header() {
		switch kv.Key {
		case versionHeader:
			if v, _ := kv.Value.(string); v != version {
				return nil, fmt.Errorf("binstate.Read: %s: version mismatch, got %v, expect %v", path, kv.Value, version)
			}
			versionFound = true
		case compressionHeader:
			compression, _ = kv.Value.(string)
		case chromosomesHeader:
			if v, _ := kv.Value.(string); v != "" {
				names = strings.Split(v, "\t")
			}
		}
	}
	if !versionFound {
		return nil, fmt.Errorf("binstate.Read: %s: %s not found in header (not a state file?)", path, versionHeader)
	}
	for r.Scan() {
		data := r.Get().([]byte)
		if compression == CompressionSnappy {
			if data, err = snappy.Decode(nil, data); err != nil {
				return nil, errors.E(err, "binstate.Read", path)
			}
		}
		s, err := Unmarshal(data)
		if err != nil {
			return nil, errors.E(err, "binstate.Read", path)
		}
		states = append(states, s)
	}
	if err := r.Err(); err != nil {
		return nil, errors.E(err, "binstate.Read", path)
	}
	count, n := proto.DecodeVarint(r.Trailer())
	if n == 0 {
		return nil, fmt.Errorf("binstate.Read: %s: missing trailer (truncated file?)", path)
	}
	if int(count) != len(states) || len(names) != len(states) {
		return nil, fmt.Errorf("binstate.Read: %s: truncated: trailer says %d records, header lists %d, read %d",
			path, count, len(names), len(states))
	}
	for i, s := range states {
		if s.Name != names[i] {
			return nil, fmt.Errorf("binstate.Read: %s: record %d is %s, header says %s", path, i, s.Name, names[i])
		}
	}
	if err := r.Finish(); err != nil {
		return nil, errors.E(err, "binstate.Read", path)
	}
	log.Debug.Printf("binstate.Read: %s: read %d chromosome(s)", path, len(states))
	return states, nil
}
