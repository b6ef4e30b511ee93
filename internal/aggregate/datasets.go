package aggregate

import (
	"strings"

	"github.com/emanehab99/gstar-stats/internal/core"
)

// Dataset categories in match order. ReadyMade catches everything else.
const (
	DatasetMultidark     = "Multidark"
	DatasetVishnuBolshoi = "Vishnu Bolshoi"
	DatasetBolshoiPlanck = "Bolshoi Planck"
	DatasetBolshoi       = "Bolshoi"
	DatasetMillennium    = "Millennium"
	DatasetReadyMade     = "Ready-Made"
)

var datasetMatchers = []struct {
	substr   string
	category string
}{
	{"multidark", DatasetMultidark},
	{"vishnu_bolshoi", DatasetVishnuBolshoi},
	{"bolshoi_planck", DatasetBolshoiPlanck},
	{"bolshoi", DatasetBolshoi},
	{"millennium", DatasetMillennium},
}

// DatasetCategories lists every category in report order.
var DatasetCategories = []string{
	DatasetMultidark, DatasetVishnuBolshoi, DatasetBolshoiPlanck,
	DatasetBolshoi, DatasetMillennium, DatasetReadyMade,
}

// CategorizeDataset returns the category of a dataset name by the first
// matching substring. ok is false for an empty name.
func CategorizeDataset(name string) (category string, ok bool) {
	if name == "" {
		return "", false
	}
	for _, m := range datasetMatchers {
		if strings.Contains(name, m.substr) {
			return m.category, true
		}
	}
	return DatasetReadyMade, true
}

// DatasetCount is a number of jobs run against one dataset or category.
type DatasetCount struct {
	Name string
	Jobs int64
}

// JobsByDataset folds per dataset job counts into categories, dropping jobs
// with no dataset. Categories without jobs are omitted; order follows
// DatasetCategories.
func JobsByDataset(counts []DatasetCount) []DatasetCount {
	byCategory := make(map[string]int64)
	for _, c := range counts {
		category, ok := CategorizeDataset(c.Name)
		if !ok {
			continue
		}
		byCategory[category] += c.Jobs
	}
	out := make([]DatasetCount, 0, len(byCategory))
	for _, category := range DatasetCategories {
		if n, ok := byCategory[category]; ok {
			out = append(out, DatasetCount{Name: category, Jobs: n})
		}
	}
	return out
}

// DatasetRows renders category counts as report rows.
func DatasetRows(counts []DatasetCount) []core.UsageRow {
	rows := make([]core.UsageRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, core.CountRow(c.Name, c.Jobs))
	}
	return rows
}
