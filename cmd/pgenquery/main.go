// Command pgenquery is a thin command-line harness driving the five
// aggregation kernels over a PGEN dataset directly, without a host SQL
// engine (SPEC_FULL.md §6 "DOMAIN STACK supplement — CLI surface").
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"

	"github.com/plinkql/pgencore/kernel/freq"
	"github.com/plinkql/pgencore/kernel/hwe"
	"github.com/plinkql/pgencore/kernel/ld"
	"github.com/plinkql/pgencore/kernel/missing"
	"github.com/plinkql/pgencore/kernel/score"
	"github.com/plinkql/pgencore/pgenfn"
	"github.com/plinkql/pgencore/region"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
)

var (
	flagPVAR    string
	flagPSAM    string
	flagRegion  string
	flagSamples string
)

func commonOpts(path string) (pgenfn.CommonOpts, error) {
	// Validate region syntax eagerly, before any sidecar is opened: a
	// malformed --region flag should fail fast rather than after a full
	// pvar/psam load (region.Parse needs no loaded index for this).
	if flagRegion != "" {
		if _, err := region.Parse(flagRegion); err != nil {
			return pgenfn.CommonOpts{}, err
		}
	}
	var samples subset.SamplesParam
	if flagSamples != "" {
		samples = subset.StringList(strings.Split(flagSamples, ","))
	}
	return pgenfn.CommonOpts{
		Path: path, PVAR: flagPVAR, PSAM: flagPSAM, Region: flagRegion, Samples: samples,
	}, nil
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagPVAR, "pvar", "", "override variant sidecar path")
	cmd.Flags().StringVar(&flagPSAM, "psam", "", "override sample sidecar path")
	cmd.Flags().StringVar(&flagRegion, "region", "", "chrom:start-end region filter")
	cmd.Flags().StringVar(&flagSamples, "samples", "", "comma-separated sample IID subset")
}

func main() {
	root := &cobra.Command{
		Use:   "pgenquery",
		Short: "run frequency/HWE/missingness/LD/score over a PGEN dataset",
	}

	var optCounts bool
	freqCmd := &cobra.Command{
		Use:   "freq PGEN_PATH",
		Short: "per-variant allele frequency (K1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := commonOpts(args[0])
			if err != nil {
				return err
			}
			f := pgenfn.NewFreqFunction(pgenfn.FreqOpts{CommonOpts: co, Counts: optCounts})
			if err := f.Bind(); err != nil {
				return err
			}
			local, err := f.InitLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			header := "chrom\tpos\tid\tref\talt\talt_freq\tobs_ct"
			if optCounts {
				header += "\thom_ref_ct\thet_ct\thom_alt_ct\tmissing_ct"
			}
			fmt.Fprintln(w, header)
			log.Printf("pgenquery freq: starting scan over %s", args[0])
			var nRows int
			for {
				batch := scan.NewBatch[freq.Row](256)
				done, err := f.Scan(local, batch)
				if err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%d",
						r.Chrom, r.Pos, derefStr(r.ID), r.Ref, derefStr(r.Alt), formatFloatPtr(r.AltFreq), r.ObsCt)
					if optCounts {
						fmt.Fprintf(w, "\t%s\t%s\t%s\t%s",
							formatUint32Ptr(r.HomRefCt), formatUint32Ptr(r.HetCt), formatUint32Ptr(r.HomAltCt), formatUint32Ptr(r.MissingCt))
					}
					fmt.Fprintln(w)
				}
				nRows += len(batch.Rows)
				if done {
					break
				}
			}
			log.Printf("pgenquery freq: scan complete, %d rows", nRows)
			return nil
		},
	}
	freqCmd.Flags().BoolVar(&optCounts, "counts", false, "project hom_ref/het/hom_alt/missing counts")
	addCommonFlags(freqCmd)
	root.AddCommand(freqCmd)

	var optMidp bool
	hweCmd := &cobra.Command{
		Use:   "hwe PGEN_PATH",
		Short: "per-variant Hardy-Weinberg exact test (K2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := commonOpts(args[0])
			if err != nil {
				return err
			}
			f := pgenfn.NewHWEFunction(pgenfn.HWEOpts{CommonOpts: co, Midp: optMidp})
			if err := f.Bind(); err != nil {
				return err
			}
			local, err := f.InitLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			fmt.Fprintln(w, "chrom\tpos\tid\tref\talt\tp_hwe")
			for {
				batch := scan.NewBatch[hwe.Row](256)
				done, err := f.Scan(local, batch)
				if err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%g\n",
						r.Chrom, r.Pos, derefStr(r.ID), r.Ref, derefStr(r.Alt), r.PHWE)
				}
				if done {
					break
				}
			}
			return nil
		},
	}
	hweCmd.Flags().BoolVar(&optMidp, "midp", false, "use mid-p adjustment")
	addCommonFlags(hweCmd)
	root.AddCommand(hweCmd)

	var optSampleMode bool
	missingCmd := &cobra.Command{
		Use:   "missing PGEN_PATH",
		Short: "per-variant or per-sample missingness rate (K3)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := commonOpts(args[0])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			if optSampleMode {
				f := pgenfn.NewMissingSampleFunction(pgenfn.MissingOpts{CommonOpts: co})
				if err := f.Bind(); err != nil {
					return err
				}
				local, err := f.InitLocal()
				if err != nil {
					return err
				}
				defer local.Close()
				fmt.Fprintln(w, "iid\tmissing_ct\tobs_ct\tf_miss")
				for {
					batch := scan.NewBatch[missing.SampleRow](256)
					done, err := f.Scan(local, batch)
					if err != nil {
						return err
					}
					for _, r := range batch.Rows {
						fmt.Fprintf(w, "%s\t%d\t%d\t%g\n", r.IID, r.MissingCt, r.ObsCt, r.FMiss)
					}
					if done {
						break
					}
				}
				return nil
			}
			f := pgenfn.NewMissingVariantFunction(pgenfn.MissingOpts{CommonOpts: co})
			if err := f.Bind(); err != nil {
				return err
			}
			local, err := f.InitLocal()
			if err != nil {
				return err
			}
			defer local.Close()
			fmt.Fprintln(w, "chrom\tpos\tid\tref\talt\tmissing_ct\tobs_ct\tf_miss")
			for {
				batch := scan.NewBatch[missing.VariantRow](256)
				done, err := f.Scan(local, batch)
				if err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%d\t%g\n",
						r.Chrom, r.Pos, derefStr(r.ID), r.Ref, derefStr(r.Alt), r.MissingCt, r.ObsCt, r.FMiss)
				}
				if done {
					break
				}
			}
			return nil
		},
	}
	missingCmd.Flags().BoolVar(&optSampleMode, "by-sample", false, "aggregate per sample instead of per variant")
	addCommonFlags(missingCmd)
	root.AddCommand(missingCmd)

	var ldIDA, ldIDB string
	var ldWindowBP int64
	var ldR2Threshold float64
	var ldInterChr bool
	ldCmd := &cobra.Command{
		Use:   "ld PGEN_PATH",
		Short: "pairwise or windowed linkage disequilibrium (K4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := commonOpts(args[0])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			if ldIDA != "" || ldIDB != "" {
				f := pgenfn.NewLDPairwiseFunction(pgenfn.LDOpts{CommonOpts: co, IDA: ldIDA, IDB: ldIDB})
				if err := f.Bind(); err != nil {
					return err
				}
				local, err := f.InitLocal()
				if err != nil {
					return err
				}
				defer local.Close()
				fmt.Fprintln(w, "id_a\tid_b\tr2\td_prime\tobs_ct")
				batch := scan.NewBatch[ld.Row](16)
				if _, err := f.Scan(local, batch); err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						derefStr(r.IDA), derefStr(r.IDB), formatFloatPtr(r.R2), formatFloatPtr(r.DPrime), r.ObsCt)
				}
				return nil
			}
			f := pgenfn.NewLDWindowedFunction(pgenfn.LDOpts{
				CommonOpts: co, WindowBP: ldWindowBP, R2Threshold: ldR2Threshold, InterChr: ldInterChr,
			})
			if err := f.Bind(); err != nil {
				return err
			}
			local, err := f.InitLocal()
			if err != nil {
				return err
			}
			defer local.Close()
			fmt.Fprintln(w, "chrom_a\tpos_a\tid_a\tchrom_b\tpos_b\tid_b\tr2\td_prime\tobs_ct")
			for {
				batch := scan.NewBatch[ld.Row](256)
				done, err := f.Scan(local, batch)
				if err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t%d\n",
						r.ChromA, r.PosA, derefStr(r.IDA), r.ChromB, r.PosB, derefStr(r.IDB),
						formatFloatPtr(r.R2), formatFloatPtr(r.DPrime), r.ObsCt)
				}
				if done {
					break
				}
			}
			return nil
		},
	}
	ldCmd.Flags().StringVar(&ldIDA, "id-a", "", "pairwise mode: first variant id")
	ldCmd.Flags().StringVar(&ldIDB, "id-b", "", "pairwise mode: second variant id")
	ldCmd.Flags().Int64Var(&ldWindowBP, "window-bp", 1000000, "windowed mode: window size in base pairs")
	ldCmd.Flags().Float64Var(&ldR2Threshold, "r2-threshold", 0.0, "windowed mode: minimum r2 to emit")
	ldCmd.Flags().BoolVar(&ldInterChr, "inter-chr", false, "windowed mode: allow cross-chromosome pairs")
	addCommonFlags(ldCmd)
	root.AddCommand(ldCmd)

	var scoreWeightsPath string
	var scoreCenter, scoreNoMeanImputation bool
	scoreCmd := &cobra.Command{
		Use:   "score PGEN_PATH",
		Short: "per-sample polygenic score (K5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := commonOpts(args[0])
			if err != nil {
				return err
			}
			weights, err := loadWeights(scoreWeightsPath)
			if err != nil {
				return err
			}
			f := pgenfn.NewScoreFunction(pgenfn.ScoreOpts{
				CommonOpts: co, Weights: weights, Center: scoreCenter, NoMeanImputation: scoreNoMeanImputation,
			})
			if err := f.Bind(); err != nil {
				return err
			}
			local, err := f.InitLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			fmt.Fprintln(w, "iid\tallele_ct\tnamed_allele_sum\tscore_sum\tscore_avg")
			for {
				batch := scan.NewBatch[score.Row](256)
				done, err := f.Scan(local, batch)
				if err != nil {
					return err
				}
				for _, r := range batch.Rows {
					fmt.Fprintf(w, "%s\t%d\t%g\t%g\t%g\n", r.IID, r.AlleleCt, r.NamedAlleleSum, r.ScoreSum, r.ScoreAvg)
				}
				if done {
					break
				}
			}
			return nil
		},
	}
	scoreCmd.Flags().StringVar(&scoreWeightsPath, "weights", "", "path to a newline-delimited weights file: either one float per variant in range, or 'id allele weight' triples")
	scoreCmd.Flags().BoolVar(&scoreCenter, "center", false, "variance-standardize scored dosages")
	scoreCmd.Flags().BoolVar(&scoreNoMeanImputation, "no-mean-imputation", false, "skip missing samples instead of mean-imputing")
	scoreCmd.MarkFlagRequired("weights")
	addCommonFlags(scoreCmd)
	root.AddCommand(scoreCmd)

	if err := root.Execute(); err != nil {
		log.Error.Printf("pgenquery: %v", err)
		os.Exit(1)
	}
}

func derefStr(p *string) string {
	if p == nil {
		return "."
	}
	return *p
}

func formatFloatPtr(p *float64) string {
	if p == nil {
		return "."
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

func formatUint32Ptr(p *uint32) string {
	if p == nil {
		return "."
	}
	return strconv.FormatUint(uint64(*p), 10)
}

// loadWeights parses a weights file as either a flat list of floats
// (positional mode) or "id allele weight" triples (id-keyed mode),
// detected by whether each line splits into one or three fields.
func loadWeights(path string) (score.WeightsParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var positional score.Positional
	var idKeyed score.IDKeyed
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 1:
			v, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, err
			}
			positional = append(positional, v)
		case 3:
			v, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, err
			}
			idKeyed = append(idKeyed, score.IDWeight{ID: fields[0], Allele: fields[1], Weight: v})
		default:
			return nil, fmt.Errorf("pgenquery: malformed weights line %q", line)
		}
	}
	if len(idKeyed) > 0 {
		return idKeyed, nil
	}
	return positional, nil
}
