package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/suggest"
	"github.com/cuemby/portguard/pkg/types"
)

// errorResponse is the body written for any handler error.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a perr sentinel to an HTTP status (4xx for caller
// errors, 503 for store/runtime failures, 500 otherwise; spec §7)
// and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, perr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, perr.ErrOwnerLimitExceeded), errors.Is(err, perr.ErrPortConflict):
		status = http.StatusConflict
	case errors.Is(err, perr.ErrNotOwner), errors.Is(err, perr.ErrNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, perr.ErrStoreError), errors.Is(err, perr.ErrRuntimeUnavailable):
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func protocolOrDefault(p types.Protocol) types.Protocol {
	if p == "" {
		return types.ProtocolTCP
	}
	return p
}

// checkRequest is check_availability's request body.
type checkRequest struct {
	Ports    []int          `json:"ports"`
	Protocol types.Protocol `json:"protocol"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req checkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	result, err := s.sup.CheckAvailability(r.Context(), req.Ports, protocolOrDefault(req.Protocol))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// reserveRequest is reserve's request body.
type reserveRequest struct {
	Ports            []int          `json:"ports"`
	Owner            string         `json:"owner"`
	OwnerName        string         `json:"owner_name"`
	Protocol         types.Protocol `json:"protocol"`
	DurationSeconds  int64          `json:"duration_seconds"`
	Metadata         map[string]any `json:"metadata"`
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req reserveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	duration := secondsToDuration(req.DurationSeconds)
	result, err := s.sup.Reserve(r.Context(), req.Ports, req.Owner, req.OwnerName, protocolOrDefault(req.Protocol), duration, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// releaseRequest is release's request body; empty Ports releases
// everything owner holds.
type releaseRequest struct {
	Owner    string         `json:"owner"`
	Ports    []int          `json:"ports,omitempty"`
	Protocol types.Protocol `json:"protocol"`
}

type releaseResponse struct {
	Released []int `json:"released"`
	Count    int   `json:"count"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req releaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	count, err := s.sup.Release(req.Owner, req.Ports, protocolOrDefault(req.Protocol))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, releaseResponse{Released: req.Ports, Count: count})
}

// suggestRequest is suggest's request body.
type suggestRequest struct {
	Ports            []int             `json:"ports"`
	Protocol         types.Protocol    `json:"protocol"`
	ServiceType      types.ServiceType `json:"service_type"`
	MaxSuggestions   int               `json:"max_suggestions"`
	PreferredRange   *types.PortRange  `json:"preferred_range"`
	OwnerName        string            `json:"owner_name"`
	PreferSequential bool              `json:"prefer_sequential"`
	NearbyRange      int               `json:"nearby_range"`
	AvoidWellKnown   bool              `json:"avoid_well_known"`
	RespectRanges    bool              `json:"respect_ranges"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req suggestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	result, err := s.sup.SuggestAlternatives(r.Context(), suggest.Request{
		Ports:            req.Ports,
		Protocol:         protocolOrDefault(req.Protocol),
		PreferSequential: req.PreferSequential,
		MaxSuggestions:   req.MaxSuggestions,
		NearbyRange:      req.NearbyRange,
		AvoidWellKnown:   req.AvoidWellKnown,
		RespectRanges:    req.RespectRanges,
		ServiceType:      req.ServiceType,
		PreferredRange:   req.PreferredRange,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// validateRequest is validate_deployment's request body.
type validateRequest struct {
	Ports    []int          `json:"ports"`
	Owner    string         `json:"owner"`
	Protocol types.Protocol `json:"protocol"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	result, err := s.sup.ValidateDeployment(r.Context(), req.Ports, req.Owner, protocolOrDefault(req.Protocol))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleScanRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	start, err := parseIntParam(q, "start")
	if err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	end, err := parseIntParam(q, "end")
	if err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	protocol := protocolOrDefault(types.Protocol(q.Get("protocol")))

	result, err := s.sup.ScanRange(r.Context(), start, end, protocol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleGetPortsInUse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.sup.GetPortsInUse(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

type portLabelRequest struct {
	Port     int            `json:"port"`
	Protocol types.Protocol `json:"protocol"`
	Label    string         `json:"label"`
}

type portLabelResponse struct {
	Label string `json:"label"`
}

func (s *Server) handlePortLabel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		port, err := parseIntParam(q, "port")
		if err != nil {
			writeError(w, perr.Invalid(err.Error()))
			return
		}
		protocol := protocolOrDefault(types.Protocol(q.Get("protocol")))
		label, err := s.sup.GetPortLabel(port, protocol)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, portLabelResponse{Label: label})
	case http.MethodPost:
		var req portLabelRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, perr.Invalid(err.Error()))
			return
		}
		if err := s.sup.UpdatePortLabel(req.Port, protocolOrDefault(req.Protocol), req.Label); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type portDocumentationRequest struct {
	Port     int            `json:"port"`
	Protocol types.Protocol `json:"protocol"`
	Text     string         `json:"text"`
}

func (s *Server) handlePortDocumentation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req portDocumentationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, perr.Invalid(err.Error()))
		return
	}
	if err := s.sup.UpdatePortDocumentation(req.Port, protocolOrDefault(req.Protocol), req.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.sup.Statistics())
}
