package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"timeshare-deals/models"
	"timeshare-deals/scraper"
	"timeshare-deals/services"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

const maxUploadBytes = 10 << 20

// DealQuerier serves the computed deal view.
type DealQuerier interface {
	Deals(ctx context.Context, f services.DealFilter, key services.SortKey) ([]*models.Deal, error)
	Summary(ctx context.Context, f services.DealFilter) (*models.Summary, error)
}

// ScrapeStarter launches background scrape runs.
type ScrapeStarter interface {
	Start(ctx context.Context, source models.Source, filters scraper.Filters, done func(*services.RunResult, error)) error
}

// FeeImporter replaces the reference fee table.
type FeeImporter interface {
	Import(ctx context.Context, r io.Reader, format services.ImportFormat) (*services.ImportResult, error)
}

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	deals    DealQuerier
	store    storage.Store
	runner   ScrapeStarter
	importer FeeImporter
	logger   *utils.Logger

	// runs started over HTTP outlive their request
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewServer(baseCtx context.Context, deals DealQuerier, store storage.Store, runner ScrapeStarter,
	importer FeeImporter, logger *utils.Logger) *Server {
	return &Server{
		deals:    deals,
		store:    store,
		runner:   runner,
		importer: importer,
		logger:   logger,
		baseCtx:  baseCtx,
	}
}

// Wait blocks until background runs started by this server have finished.
func (s *Server) Wait() { s.wg.Wait() }

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key, err := services.ParseSortKey(q.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := optionalInt(q, "limit")
	if err != nil || (limit != nil && *limit < 0) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer"))
		return
	}

	deals, err := s.deals.Deals(r.Context(), f, key)
	if err != nil {
		s.internalError(w, "list deals", err)
		return
	}
	total := len(deals)
	if limit != nil && *limit > 0 && *limit < len(deals) {
		deals = deals[:*limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"count": len(deals),
		"sort":  key,
		"deals": deals,
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.deals.Summary(r.Context(), f)
	if err != nil {
		s.internalError(w, "summary", err)
		return
	}
	resp := map[string]any{"summary": summary}
	if summary.CheapestTenYear != nil {
		resp["cheapest_10yr"] = summary.CheapestTenYear
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, err := optionalInt(r.URL.Query(), "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if v != nil {
		limit = *v
	}
	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []*models.ScrapeRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listReferenceFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.store.ReferenceFees(r.Context())
	if err != nil {
		s.internalError(w, "reference fees", err)
		return
	}
	if fees == nil {
		fees = []*models.ReferenceFee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(fees), "reference_fees": fees})
}

// importReferenceFees accepts a multipart "file" field or a raw body whose
// format comes from ?format= (csv by default).
func (s *Server) importReferenceFees(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		body   io.Reader = r.Body
		format           = services.FormatCSV
		err    error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("multipart field \"file\": %w", ferr))
			return
		}
		defer file.Close()
		body = file
		if format, err = services.FormatFromFilename(header.Filename); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else if f := r.URL.Query().Get("format"); f != "" {
		if format, err = services.FormatFromFilename("upload." + f); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	res, err := s.importer.Import(r.Context(), body, format)
	switch {
	case errors.Is(err, services.ErrMalformedRow), errors.Is(err, services.ErrMissingColumn):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "run": runOf(res)})
		return
	case err != nil:
		s.internalError(w, "import reference fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"run":      res.Run,
	})
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	source, ok := models.ParseSource(mux.Vars(r)["source"])
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", mux.Vars(r)["source"]))
		return
	}
	q := r.URL.Query()
	priceMin, err := optionalFloat(q, "price_min")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	priceMax, err := optionalFloat(q, "price_max")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.wg.Add(1)
	err = s.runner.Start(s.baseCtx, source, scraper.Filters{PriceMin: priceMin, PriceMax: priceMax},
		func(res *services.RunResult, err error) {
			defer s.wg.Done()
			if err != nil {
				s.logger.Warn("[api] Scrape of %s finished with error: %v", source, err)
			}
		})
	if err != nil {
		s.wg.Done()
		switch {
		case errors.Is(err, services.ErrRunInProgress):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, scraper.ErrUnknownSource):
			writeError(w, http.StatusNotFound, err)
		default:
			s.internalError(w, "start scrape", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source": string(source), "status": "started"})
}

// ── helpers ─────────────────────────────────────────────────────────────────

func parseFilter(q url.Values) (services.DealFilter, error) {
	var (
		f   services.DealFilter
		err error
	)

	for _, season := range splitList(q.Get("season")) {
		if strings.EqualFold(season, "all") {
			f.Seasons = nil
			break
		}
		f.Seasons = append(f.Seasons, season)
	}

	if f.UsageTier, err = services.ParseUsageTier(q.Get("usage")); err != nil {
		return f, err
	}

	f.Locations = splitList(q.Get("location"))
	for _, name := range splitList(q.Get("source")) {
		src, ok := models.ParseSource(name)
		if !ok {
			return f, fmt.Errorf("unknown source %q", name)
		}
		f.Sources = append(f.Sources, src)
	}

	if f.PointsMin, err = optionalInt(q, "points_min"); err != nil {
		return f, err
	}
	if f.PointsMax, err = optionalInt(q, "points_max"); err != nil {
		return f, err
	}
	if f.PriceMin, err = optionalFloat(q, "price_min"); err != nil {
		return f, err
	}
	if f.PriceMax, err = optionalFloat(q, "price_max"); err != nil {
		return f, err
	}
	if f.MaxMFPerPoint, err = optionalFloat(q, "max_mf_per_point"); err != nil {
		return f, err
	}
	return f, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optionalInt(q url.Values, key string) (*int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return &n, nil
}

func optionalFloat(q url.Values, key string) (*float64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return &n, nil
}

func runOf(res *services.ImportResult) *models.ScrapeRun {
	if res == nil {
		return nil
	}
	return res.Run
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error("[api] %s: %v", action, err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
