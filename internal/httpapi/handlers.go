package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/nholding/cycle-book/internal/export"
	"github.com/nholding/cycle-book/internal/observability"
	"github.com/nholding/cycle-book/internal/period/domain"
)

const maxBody = 1 << 16

type errorBody struct {
	Error string `json:"error"`
}

type startRequest struct {
	StartDate domain.Date `json:"startDate"`
}

type endRequest struct {
	EndDate domain.Date `json:"endDate"`
}

func (s *Server) startPeriod(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.StartDate.IsZero() {
		req.StartDate = s.svc.Today()
	}

	p, err := s.svc.StartPeriod(r.Context(), OwnerFrom(r.Context()), req.StartDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/periods/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) endPeriod(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.EndDate.IsZero() {
		req.EndDate = s.svc.Today()
	}

	p, err := s.svc.EndPeriod(r.Context(), OwnerFrom(r.Context()), r.PathValue("id"), req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.svc.Periods(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

func (s *Server) currentPeriod(w http.ResponseWriter, r *http.Request) {
	cur, err := s.svc.CurrentPeriod(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) getPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.PeriodByID(r.Context(), OwnerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Events(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFrom(r.Context())
	events, err := s.svc.Events(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="cycle-book.ics"`)
	if _, err := io.WriteString(w, export.BuildICS(owner, events, s.now())); err != nil {
		s.logger.Warn("write calendar", zap.Error(err))
	}
}

func (s *Server) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	periods, err := s.svc.Periods(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := export.PeriodsWorkbook(periods, s.svc.Today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="periods.xlsx"`)
	if err := f.Write(w); err != nil {
		s.logger.Warn("write workbook", zap.Error(err))
	}
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// decodeBody reads an optional JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, domain.ErrInvalidDate) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPeriodNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateCloseAttempt),
		errors.Is(err, domain.ErrPeriodAlreadyOpen),
		errors.Is(err, domain.ErrOverlappingPeriod):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("owner", OwnerFrom(r.Context())),
			zap.Error(err),
		)
		observability.CapturePeriodErr(OwnerFrom(r.Context()), r.PathValue("id"), err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
