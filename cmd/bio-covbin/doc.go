/*
bio-covbin computes GC-corrected, binned read coverage from a BAM and a
k-mer-uniqueness reference, for copy-number analysis.

The work is usually split per chromosome.  Each map invocation reads one
chromosome and writes its intermediate state:

bio-covbin \
    -bam sample.bam \
    -reference kmer.fa \
    -filter exclude.bed \
    -chr chr7 \
    -out chr7.state

A single merge invocation then bins all of them:

bio-covbin \
    -reference kmer.fa \
    -bindepth 100 \
    -mode gccontentweighted \
    -infile chr1.state -infile chr2.state ... \
    -out sample.bins.gz

-single-pass replaces both steps with one invocation over all chromosomes.

Each output line holds the chromosome, 0-based start and stop, the count with
two decimals, and the GC percentage of the bin.

With -mode fragment, read-pair fragments are counted into the bins given by
-bins instead; -paired-end is required.
*/
package main
