// Package relocate implements the Relocator: moving free (unassigned)
// cabs sitting at a stop beyond its capacity to the nearest stop that
// still has room. Two interchangeable strategies are offered — a greedy
// nearest-stop assignment and an exact transportation-problem solve via
// an external GLPK binary — selected at runtime by
// config.DispatchConfig.RelocationStrategy.
package relocate

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"text/template"

	"github.com/shiva/dispatch/internal/dispatch/mutation"
	"github.com/shiva/dispatch/internal/geo"
	"github.com/shiva/dispatch/internal/model"
)

// Config holds the tunables the relocator needs from config.GlpkConfig.
type Config struct {
	BinPath   string
	ModelPath string
	OutPath   string
}

// Strategy relocates a set of free cabs against the stop network and
// returns the mutation commands needed to carry out the moves it
// decided on.
type Strategy interface {
	Relocate(ctx context.Context, freeCabs []model.Cab, stops []model.Stop, matrix *geo.Matrix) ([]mutation.Command, error)
}

// NewStrategy builds the relocator named by cfg.DispatchConfig's
// RelocationStrategy field ("greedy" or "glpk"); unrecognized names
// fall back to "greedy" rather than erroring, since a missing/misspelled
// config value should degrade gracefully, not stall the dispatch tick.
func NewStrategy(name string, glpkCfg Config) Strategy {
	switch name {
	case "glpk":
		return &glpkStrategy{cfg: glpkCfg}
	default:
		return &greedyStrategy{}
	}
}

// countCapacity returns, per stop (same order as stops), how many more
// cabs it can hold given the free cabs already parked there.
func countCapacity(freeCabs []model.Cab, stops []model.Stop) []int {
	capa := make([]int, len(stops))
	for i, s := range stops {
		count := 0
		for _, c := range freeCabs {
			if c.Location == s.ID {
				count++
			}
		}
		capa[i] = s.Capacity - count
	}
	return capa
}

func capacityAt(stopID int64, stops []model.Stop, capa []int) int {
	for i, s := range stops {
		if s.ID == stopID {
			return capa[i]
		}
	}
	return 0
}

// greedyStrategy is a very primitive greedy: it searches, cab by cab in
// input order, for the nearest stop with spare capacity — not the
// globally cheapest assignment. Grounded on
// original_source/src/solver.rs::relocate_free_cabs, including its own
// acknowledged limitation (a TODO in the Rust source notes this same
// shortcoming).
type greedyStrategy struct{}

func (g *greedyStrategy) Relocate(ctx context.Context, freeCabs []model.Cab, stops []model.Stop, matrix *geo.Matrix) ([]mutation.Command, error) {
	capa := countCapacity(freeCabs, stops)
	var cmds []mutation.Command
	totalDist := 0

	for _, cab := range freeCabs {
		if capacityAt(cab.Location, stops, capa) >= 0 {
			continue
		}
		dist := 1 << 30
		dest := int64(-1)
		destIdx := -1
		for idx, s := range stops {
			d := matrix.Minutes(cab.Location, s.ID)
			if capa[idx] > 0 && d < dist {
				dist = d
				dest = s.ID
				destIdx = idx
			}
		}
		if destIdx == -1 {
			log.Printf("[relocate] WARNING: no stop with spare capacity found for cab %d, leaving in place", cab.ID)
			continue
		}
		capa[destIdx]--
		totalDist += dist
		cmds = append(cmds, mutation.RelocateCab{CabID: cab.ID, FromStopID: cab.Location, DestStopID: dest, Dist: dist})
	}
	if len(cmds) > 0 {
		log.Printf("[relocate] greedy strategy: relocating %d cabs, total cost %d minutes", len(cmds), totalDist)
	}
	return cmds, nil
}

// glpkStrategy solves the relocation as an exact transportation problem:
// minimize total distance subject to each cab moving exactly once and
// no stop exceeding its spare capacity. Grounded on
// original_source/src/solver.rs::relocate_free_cabs_glpk/run_glpk.
type glpkStrategy struct {
	cfg Config
}

var glpkModelTemplate = template.Must(template.New("glpk").Parse(
	`param ii, integer, > 0;
set I := 1..ii;
param jj, integer, > 0;
set J := 1..jj;
param capacity{j in J}, integer;
param c{i in I, j in J};
var x{i in I, j in J} >= 0, binary;
s.t. cabs{i in I}: sum{j in J} x[i,j] = 1;
s.t. stops{j in J}: sum{i in I} x[i,j] <= capacity[j];
minimize cost: sum{i in I, j in J} c[i,j] * x[i,j];
solve;
table tbl{(j, i) in {J, I}: x[i,j] = 1} OUT "CSV" "{{.OutPath}}": j,i;
data;
param ii := {{.CabCount}};
param jj := {{.StopCount}};
param capacity := {{range .Capacities}}{{.Index}} {{.Capacity}},{{end}}
;
param c : {{range .StopIndices}}{{.}} {{end}}:=
{{range .Rows}}  {{.CabIndex}}{{range .Costs}} {{.}}{{end}}
{{end}};
end;
`))

type glpkCapacity struct {
	Index    int
	Capacity int
}

type glpkRow struct {
	CabIndex int
	Costs    []int
}

type glpkModelData struct {
	CabCount    int
	StopCount   int
	OutPath     string
	Capacities  []glpkCapacity
	StopIndices []int
	Rows        []glpkRow
}

func (g *glpkStrategy) Relocate(ctx context.Context, freeCabs []model.Cab, stops []model.Stop, matrix *geo.Matrix) ([]mutation.Command, error) {
	if len(freeCabs) == 0 {
		return nil, nil
	}
	capa := countCapacity(freeCabs, stops)

	var cabIdx, stopIdx []int
	for i, c := range freeCabs {
		if capacityAt(c.Location, stops, capa) < 0 {
			cabIdx = append(cabIdx, i)
		}
	}
	if len(cabIdx) == 0 {
		return nil, nil
	}
	for i := range stops {
		if capa[i] > 0 {
			stopIdx = append(stopIdx, i)
		}
	}
	if len(stopIdx) == 0 {
		log.Printf("[relocate] WARNING: no stop with spare capacity for cabs needing relocation")
		return nil, nil
	}

	pairs, err := g.runGlpk(ctx, freeCabs, cabIdx, stops, stopIdx, capa, matrix)
	if err != nil {
		return nil, err
	}

	var cmds []mutation.Command
	totalDist := 0
	for _, p := range pairs {
		cab := freeCabs[p.cabIdx]
		stop := stops[p.stopIdx]
		dist := matrix.Minutes(cab.Location, stop.ID)
		totalDist += dist
		cmds = append(cmds, mutation.RelocateCab{CabID: cab.ID, FromStopID: cab.Location, DestStopID: stop.ID, Dist: dist})
	}
	if len(cmds) > 0 {
		log.Printf("[relocate] glpk strategy: relocating %d cabs, total cost %d minutes", len(cmds), totalDist)
	}
	return cmds, nil
}

type glpkPair struct {
	stopIdx, cabIdx int
}

func (g *glpkStrategy) runGlpk(ctx context.Context, freeCabs []model.Cab, cabIdx []int, stops []model.Stop, stopIdx []int, capa []int, matrix *geo.Matrix) ([]glpkPair, error) {
	data := glpkModelData{
		CabCount:  len(cabIdx),
		StopCount: len(stopIdx),
		OutPath:   g.cfg.OutPath,
	}
	for i, si := range stopIdx {
		data.Capacities = append(data.Capacities, glpkCapacity{Index: i + 1, Capacity: capa[si]})
		data.StopIndices = append(data.StopIndices, i+1)
	}
	for ci, fi := range cabIdx {
		row := glpkRow{CabIndex: ci + 1}
		for _, si := range stopIdx {
			row.Costs = append(row.Costs, matrix.Minutes(freeCabs[fi].Location, stops[si].ID))
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := glpkModelTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("relocate: render glpk model: %w", err)
	}
	if err := os.WriteFile(g.cfg.ModelPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("relocate: write glpk model: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.cfg.BinPath, "-m", g.cfg.ModelPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("relocate: glpsol failed: %w: %s", err, out)
	}

	f, err := os.Open(g.cfg.OutPath)
	if err != nil {
		return nil, fmt.Errorf("relocate: open glpk output: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("relocate: parse glpk output: %w", err)
	}
	var pairs []glpkPair
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue // header row
		}
		stopI, err1 := strconv.Atoi(row[0])
		cabI, err2 := strconv.Atoi(row[1])
		if err1 != nil || err2 != nil {
			continue
		}
		pairs = append(pairs, glpkPair{stopIdx: stopIdx[stopI-1], cabIdx: cabIdx[cabI-1]})
	}
	return pairs, nil
}
