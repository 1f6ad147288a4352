// samplefreq inspects the product sampling policy against a real metadata
// CSV: it runs repeated single-item draws for one plan, reports how often
// each product was selected, compares the observed frequencies against the
// score-proportional expectation with a chi-square statistic and optionally
// renders a frequency bar chart.
//
// Usage:
//
//	samplefreq -meta assets/meta.csv -target ctr -plan 12345 \
//	    -strategy weighted -trials 5000 -out plots/freq.png
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/shoprank/planfeed/meta"
	"github.com/shoprank/planfeed/sampling"
)

func main() {
	metaPath := flag.String("meta", "assets/meta.csv", "path to the metadata CSV")
	target := flag.String("target", "ctr", "numeric target column used as the sampling score")
	planID := flag.String("plan", "", "plan id to sample from (default: first plan in the table)")
	strategyFlag := flag.String("strategy", "weighted", "sampling strategy: weighted, random or sequential")
	trials := flag.Int("trials", 5000, "number of single-item sampling trials")
	seed := flag.Int64("seed", 0, "random seed (0 seeds from the clock)")
	outPlot := flag.String("out", "", "if set, write a frequency bar chart PNG to this path")
	outCSV := flag.String("out-csv", "", "if set, write per-product frequencies to this CSV path")
	flag.Parse()

	strategy, err := sampling.ParseStrategy(*strategyFlag)
	if err != nil {
		log.Fatalf("invalid strategy: %v", err)
	}
	if *trials <= 0 {
		log.Fatalf("trials must be positive, got %d", *trials)
	}

	table, err := meta.LoadCSV(*metaPath)
	if err != nil {
		log.Fatalf("failed to load metadata: %v", err)
	}
	if err := table.RequireColumns([]string{*target}); err != nil {
		log.Fatalf("invalid target column: %v", err)
	}
	log.Printf("Loaded metadata: %d rows from %s", table.Len(), *metaPath)

	index := meta.BuildPlanIndex(table)
	plan := *planID
	if plan == "" {
		plan = index.Plans()[0]
		log.Printf("No plan given; using first plan %s", plan)
	}
	rows, ok := index.Rows(plan)
	if !ok {
		log.Fatalf("there is no plan id %q in the metadata", plan)
	}

	group := make([]sampling.Item, len(rows))
	for i, row := range rows {
		score, err := table.Float(row, *target)
		if err != nil {
			log.Fatalf("bad target value: %v", err)
		}
		group[i] = sampling.Item{Row: row, Score: score}
	}
	log.Printf("Plan %s has %d products", plan, len(group))

	var sampler *sampling.Sampler
	if *seed != 0 {
		sampler, err = sampling.NewSeeded(strategy, *seed)
	} else {
		sampler, err = sampling.New(strategy)
	}
	if err != nil {
		log.Fatalf("failed to create sampler: %v", err)
	}

	counts := make(map[int]int, len(group))
	for trial := 0; trial < *trials; trial++ {
		picked, err := sampler.Sample(group, 1)
		if err != nil {
			log.Fatalf("sampling failed: %v", err)
		}
		counts[picked[0].Row]++
	}

	// Observed frequencies vs the score-proportional expectation.
	totalScore := 0.0
	for _, it := range group {
		totalScore += it.Score
	}
	observed := make([]float64, len(group))
	expected := make([]float64, len(group))
	for i, it := range group {
		observed[i] = float64(counts[it.Row])
		if totalScore > 0 {
			expected[i] = it.Score / totalScore * float64(*trials)
		} else {
			expected[i] = float64(*trials) / float64(len(group))
		}
	}
	chi2 := stat.ChiSquare(observed, expected)

	fmt.Printf("plan %s, strategy %s, %d trials\n", plan, strategy, *trials)
	fmt.Printf("%-12s %-10s %-10s %s\n", "prod_id", "score", "picks", "share")
	for i, it := range group {
		fmt.Printf("%-12s %-10.4f %-10d %.4f\n",
			table.ProdID(it.Row), it.Score, counts[it.Row], observed[i]/float64(*trials))
	}
	fmt.Printf("chi-square vs score-proportional expectation: %.4f\n", chi2)

	if *outCSV != "" {
		if err := writeFreqCSV(*outCSV, table, group, counts, *trials); err != nil {
			log.Fatalf("failed to write CSV: %v", err)
		}
		log.Printf("Wrote frequencies to %s", *outCSV)
	}

	if *outPlot != "" {
		if err := writeFreqPlot(*outPlot, plan, strategy, table, group, counts); err != nil {
			log.Fatalf("failed to write plot: %v", err)
		}
		log.Printf("Wrote frequency plot to %s", *outPlot)
	}
}

func writeFreqCSV(path string, table *meta.Table, group []sampling.Item, counts map[int]int, trials int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()
	if err := w.Write([]string{"prod_id", "score", "picks", "share"}); err != nil {
		return err
	}
	for _, it := range group {
		rec := []string{
			table.ProdID(it.Row),
			fmt.Sprintf("%g", it.Score),
			fmt.Sprintf("%d", counts[it.Row]),
			fmt.Sprintf("%.6f", float64(counts[it.Row])/float64(trials)),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeFreqPlot(path, planID string, strategy sampling.Strategy, table *meta.Table, group []sampling.Item, counts map[int]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	values := make(plotter.Values, len(group))
	labels := make([]string, len(group))
	for i, it := range group {
		values[i] = float64(counts[it.Row])
		labels[i] = table.ProdID(it.Row)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Selection frequency, plan %s (%s)", planID, strategy)
	p.Y.Label.Text = "picks"

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
