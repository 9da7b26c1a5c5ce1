package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Buzzer API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Live buzzer rounds for team quiz shows.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/session
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/session")
	getSession.SetSummary("Get session")
	getSession.SetDescription("Returns the current session snapshot.")
	getSession.AddRespStructure(buzzer.Session{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getSession)

	// POST /api/session
	postSession, _ := r.NewOperationContext(http.MethodPost, "/api/session")
	postSession.SetSummary("Presenter action")
	postSession.SetDescription("Creates a session, opens or closes answering, or resets the round.")
	postSession.AddReqStructure(SessionActionRequest{})
	postSession.AddRespStructure(buzzer.Session{}, openapi.WithHTTPStatus(http.StatusOK))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postSession)

	// GET /api/session/qr.png
	getQR, _ := r.NewOperationContext(http.MethodGet, "/api/session/qr.png")
	getQR.SetSummary("Join QR code")
	getQR.SetDescription("PNG QR code linking to the player page of the current session.")
	getQR.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("image/png"))
	_ = r.AddOperation(getQR)

	// POST /api/join
	postJoin, _ := r.NewOperationContext(http.MethodPost, "/api/join")
	postJoin.SetSummary("Join a team")
	postJoin.SetDescription("Registers a participant on one of the four teams.")
	postJoin.AddReqStructure(JoinRequest{})
	postJoin.AddRespStructure(JoinResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(postJoin)

	// POST /api/leave
	postLeave, _ := r.NewOperationContext(http.MethodPost, "/api/leave")
	postLeave.SetSummary("Leave the session")
	postLeave.SetDescription("Removes a participant. Buzzes already ranked are kept.")
	postLeave.AddReqStructure(LeaveRequest{})
	postLeave.AddRespStructure(LeaveResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postLeave)

	// POST /api/buzz
	postBuzz, _ := r.NewOperationContext(http.MethodPost, "/api/buzz")
	postBuzz.SetSummary("Buzz")
	postBuzz.SetDescription("Ranks the participant in the current round. Late, duplicate and unknown buzzes return success=false.")
	postBuzz.AddReqStructure(BuzzRequest{})
	postBuzz.AddRespStructure(buzzer.BuzzResult{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postBuzz)

	// GET /api/rounds
	getRounds, _ := r.NewOperationContext(http.MethodGet, "/api/rounds")
	getRounds.SetSummary("Round history")
	getRounds.SetDescription("Most recently closed rounds with their rankings. Pass limit as query parameter.")
	getRounds.AddRespStructure(RoundsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getRounds.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRounds)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of session-update envelopes, starting with the current state.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /ws/events
	getWSEvents, _ := r.NewOperationContext(http.MethodGet, "/ws/events")
	getWSEvents.SetSummary("WebSocket event stream")
	getWSEvents.SetDescription("Upgrades to a WebSocket that receives session-update envelopes as text frames.")
	getWSEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWSEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
