package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"timeshare-deals/models"
	"timeshare-deals/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

// Generate summarizes a deal set. Fee-per-point statistics ignore deals
// without a value; every deal is counted under some grade, unknown included.
func (s *InsightService) Generate(deals []*models.Deal) *models.Summary {
	report := &models.Summary{
		GradeCounts: make(map[models.DealGrade]int),
		ByLocation:  make(map[string]int),
		BySource:    make(map[models.Source]int),
	}
	for _, g := range models.AllGrades {
		report.GradeCounts[g] = 0
	}

	if len(deals) == 0 {
		return report
	}
	report.TotalCount = len(deals)

	var (
		total float64
		n     int
		best  *models.Deal
	)
	for _, d := range deals {
		grade := d.Grade
		if grade == "" {
			grade = models.GradeUnknown
		}
		report.GradeCounts[grade]++
		if d.Location != "" {
			report.ByLocation[d.Location]++
		}
		report.BySource[d.Source]++

		if d.MFPerPoint != nil {
			total += *d.MFPerPoint
			n++
			if best == nil || *d.MFPerPoint < *best.MFPerPoint {
				best = d
			}
		}
		if d.TotalTenYear != nil {
			if report.CheapestTenYear == nil || *d.TotalTenYear < *report.CheapestTenYear.TotalTenYear {
				report.CheapestTenYear = d
			}
		}
	}

	if n > 0 {
		avg := roundTo(total/float64(n), 4)
		lowest := roundTo(*best.MFPerPoint, 4)
		report.AvgMFPerPoint = &avg
		report.MinMFPerPoint = &lowest
		report.BestDealResort = best.ResortName
	}

	s.logger.Debug("[insights] %d deals, %d with fee-per-point", report.TotalCount, n)
	return report
}

// Print writes a terminal report with the top deals underneath.
func (s *InsightService) Print(r *models.Summary, top []*models.Deal) {
	w := s.out
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 TIMESHARE RESALE DEALS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings           : \033[1m%d\033[0m\n", r.TotalCount)
	fmt.Fprintf(w, "  Avg MF per point   : %s\n", formatPerPoint(r.AvgMFPerPoint))
	fmt.Fprintf(w, "  Best MF per point  : %s\n", formatPerPoint(r.MinMFPerPoint))
	if r.BestDealResort != "" {
		fmt.Fprintf(w, "  Best deal resort   : %s\n", truncate(r.BestDealResort, 40))
	}
	if c := r.CheapestTenYear; c != nil {
		fmt.Fprintf(w, "  Cheapest 10 years  : \033[1;32m$%.2f\033[0m (%s)\n", *c.TotalTenYear, truncate(c.ResortName, 30))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Grades\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, g := range models.AllGrades {
		fmt.Fprintf(w, "  %s %-10s %d\n", g.Stars(), g, r.GradeCounts[g])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top Deals\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(top) == 0 {
		fmt.Fprintf(w, "  No deals found\n")
	}
	for i, d := range top {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-34s %s  %s  %s\n",
			i+1, truncate(d.ResortName, 32), d.Stars, formatPerPoint(d.MFPerPoint), formatMoney(d.AskingPrice))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Location\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ByLocation) == 0 {
		fmt.Fprintf(w, "  No location data\n")
	} else {
		type locCount struct {
			loc   string
			count int
		}
		var locs []locCount
		for loc, cnt := range r.ByLocation {
			locs = append(locs, locCount{loc, cnt})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].count != locs[j].count {
				return locs[i].count > locs[j].count
			}
			return locs[i].loc < locs[j].loc
		})
		for _, lc := range locs {
			bar := strings.Repeat("█", lc.count)
			fmt.Fprintf(w, "  %-20s %s (%d)\n", truncate(lc.loc, 18), bar, lc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// formatPerPoint renders unknown values explicitly rather than as zero.
func formatPerPoint(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("$%.4f", *v)
}

func formatMoney(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("$%.2f", *v)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
