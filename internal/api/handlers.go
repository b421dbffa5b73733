package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tripdesk/internal/export"
	"tripdesk/internal/models"
	"tripdesk/internal/service"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "ok", nil)
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.svc.Checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeError(w, http.StatusServiceUnavailable, "not ready", failed)
		return
	}
	writeOK(w, "ready", nil)
}

func pathKind(r *http.Request) (models.ProductKind, error) {
	kind, err := models.ParseKind(r.PathValue("kind"))
	if err != nil {
		return "", service.ErrUnknownKind
	}
	return kind, nil
}

// partnerOf applies commissions only for sales partner tokens.
func partnerOf(r *http.Request) *int64 {
	caller, ok := callerFrom(r.Context())
	if !ok || caller.Role != models.RoleSalesPartner {
		return nil
	}
	return caller.SalesPartnerID
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, &service.ValidationError{Fields: map[string]string{name: "must be a YYYY-MM-DD date"}}
	}
	return &t, nil
}

func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &service.ValidationError{Fields: map[string]string{name: "must be an integer"}}
	}
	return &v, nil
}

func (s *HTTPServer) handleBrowse(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	listings, err := s.svc.Quotes.Browse(r.Context(), kind, date, partnerOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "products", listings)
}

func (s *HTTPServer) handleHighlights(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	n := 10
	if limit != nil {
		n = *limit
	}

	highlights, err := s.svc.Quotes.Highlights(r.Context(), kind, n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "highlights", highlights)
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeServiceError(w, service.ErrProductNotFound)
		return
	}

	req := service.QuoteRequest{Kind: kind, ProductID: id, SalesPartnerID: partnerOf(r)}
	if req.Date, err = queryDate(r, "date"); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Adults, err = queryInt(r, "adults"); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Children, err = queryInt(r, "children"); err != nil {
		writeServiceError(w, err)
		return
	}

	quote, err := s.svc.Quotes.Quote(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "quote", quote)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &service.ValidationError{Fields: map[string]string{"body": "unreadable or too large"}}
	}
	return raw, nil
}

// decodeIntent also accepts the vertical's product column (e.g. hotel_id) in place of product_id.
func decodeIntent(raw []byte, kind models.ProductKind) (service.IntentRequest, error) {
	var req service.IntentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, &service.ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}
	if req.ProductID == 0 {
		var extra map[string]json.RawMessage
		if err := json.Unmarshal(raw, &extra); err == nil {
			if v, ok := extra[kind.MustSpec().ProductColumn]; ok {
				if err := json.Unmarshal(v, &req.ProductID); err != nil {
					return req, &service.ValidationError{Fields: map[string]string{kind.MustSpec().ProductColumn: "must be an integer"}}
				}
			}
		}
	}
	return req, nil
}

func (s *HTTPServer) handleIntent(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	raw, err := readBody(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	req, err := decodeIntent(raw, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	caller, _ := callerFrom(r.Context())
	result, err := s.svc.Payments.CreateIntent(r.Context(), kind, caller, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "payment initiated"
	if result.Duplicate {
		message = "booking already exists"
	}
	writeOK(w, message, result)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	caller, _ := callerFrom(r.Context())
	result, err := s.svc.Reconciler.Status(r.Context(), kind, caller, r.PathValue("charge_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "payment status", result)
}

func (s *HTTPServer) handleRefund(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	raw, err := readBody(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in service.RefundInput
	if err := json.Unmarshal(raw, &in); err != nil {
		writeServiceError(w, &service.ValidationError{Fields: map[string]string{"body": "invalid JSON"}})
		return
	}

	caller, _ := callerFrom(r.Context())
	refund, err := s.svc.Payments.Refund(r.Context(), kind, caller, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "refund created", refund)
}

func (s *HTTPServer) handleGetRefund(w http.ResponseWriter, r *http.Request) {
	refund, err := s.svc.Payments.GetRefund(r.Context(), r.PathValue("refund_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "refund", refund)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.svc.Webhooks.Handle(r.Context(), raw, r.Header.Get("x-tap-signature")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "received", nil)
}

func (s *HTTPServer) handleReservationReport(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if !caller.IsAdmin() {
		writeServiceError(w, service.ErrForbidden)
		return
	}
	kind, err := models.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeServiceError(w, &service.ValidationError{Fields: map[string]string{"kind": "unknown product kind"}})
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if from == nil || to == nil || to.Before(*from) {
		writeServiceError(w, &service.ValidationError{Fields: map[string]string{"from": "from and to are required, from <= to"}})
		return
	}

	rows, err := s.svc.Reports.ListReservations(r.Context(), kind, *from, to.AddDate(0, 0, 1))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.ReservationsFileName(kind, *from, *to)+`"`)
	if err := export.WriteReservations(w, kind, *from, *to, rows); err != nil {
		s.log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("write reservation report")
	}
}

// fail writes the error response and logs server-side failures.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := writeServiceError(w, err)
	event := s.log.Debug()
	if status >= http.StatusInternalServerError {
		event = s.log.Error()
	}
	event.Err(err).
		Str("request_id", RequestID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")
}
