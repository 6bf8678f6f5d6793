package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playhall/arcadepass/internal/policy"
	"github.com/playhall/arcadepass/internal/session"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ArcadePass API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Session, countdown, and access-policy API for arcade kiosks.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/{device}/session/start
	postStart, _ := r.NewOperationContext(http.MethodPost, "/api/{device}/session/start")
	postStart.SetSummary("Start session")
	postStart.SetDescription("Starts a timed play session for the device. Fails while another session is active.")
	postStart.AddReqStructure(StartSessionRequest{})
	postStart.AddRespStructure(session.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postStart)

	// GET /api/{device}/session
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/{device}/session")
	getState.SetSummary("Session state")
	getState.SetDescription("Returns the current session and timer snapshot for the device.")
	getState.AddRespStructure(session.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getState)

	// POST /api/{device}/session/score
	postScore, _ := r.NewOperationContext(http.MethodPost, "/api/{device}/session/score")
	postScore.SetSummary("Update score")
	postScore.SetDescription("Merges score, stage, and streak into the active session. A no-op without one.")
	postScore.AddReqStructure(ScoreUpdateRequest{})
	postScore.AddRespStructure(session.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postScore.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postScore)

	// POST /api/{device}/session/end
	postEnd, _ := r.NewOperationContext(http.MethodPost, "/api/{device}/session/end")
	postEnd.SetSummary("End session")
	postEnd.SetDescription("Finalizes the session and reports the score. Idempotent.")
	postEnd.AddReqStructure(EndSessionRequest{})
	postEnd.AddRespStructure(session.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postEnd)

	// DELETE /api/{device}/session
	deleteSession, _ := r.NewOperationContext(http.MethodDelete, "/api/{device}/session")
	deleteSession.SetSummary("Clear session")
	deleteSession.SetDescription("Wipes all session and timer state for the device.")
	deleteSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	_ = r.AddOperation(deleteSession)

	// GET /api/{device}/session/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/{device}/session/events")
	getEvents.SetSummary("Timer event stream")
	getEvents.SetDescription("Server-Sent Events stream of authoritative timer updates. The first event is an immediate resync.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/{device}/session/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/{device}/session/ws")
	getWS.SetSummary("Timer WebSocket stream")
	getWS.SetDescription("Pushes the same timer updates as the SSE stream over a WebSocket.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// GET /api/{device}/play/{route}
	getPlay, _ := r.NewOperationContext(http.MethodGet, "/api/{device}/play/{route}")
	getPlay.SetSummary("Enter game experience")
	getPlay.SetDescription("Protected game entry. Denied requests receive a 303 redirect to /scan or /wrong-game.")
	getPlay.AddRespStructure(PlayResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getPlay.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSeeOther))
	_ = r.AddOperation(getPlay)

	// POST /api/admin/login
	postLogin, _ := r.NewOperationContext(http.MethodPost, "/api/admin/login")
	postLogin.SetSummary("Admin login")
	postLogin.SetDescription("Authenticate with email and password. Sets admin_session cookie.")
	postLogin.AddReqStructure(AdminLoginRequest{})
	postLogin.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postLogin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postLogin)

	// POST /api/admin/logout
	postLogout, _ := r.NewOperationContext(http.MethodPost, "/api/admin/logout")
	postLogout.SetSummary("Admin logout")
	postLogout.SetDescription("Clears admin session and cookie.")
	postLogout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postLogout)

	// GET /api/admin/me
	getMe, _ := r.NewOperationContext(http.MethodGet, "/api/admin/me")
	getMe.SetSummary("Current admin")
	getMe.SetDescription("Returns the currently authenticated admin. Requires admin_session cookie.")
	getMe.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getMe.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getMe)

	// GET /api/admin/policies
	listPolicies, _ := r.NewOperationContext(http.MethodGet, "/api/admin/policies")
	listPolicies.SetSummary("List policies")
	listPolicies.SetDescription("Returns all game-type access policies. Requires admin_session cookie.")
	listPolicies.AddRespStructure([]policy.Policy{}, openapi.WithHTTPStatus(http.StatusOK))
	listPolicies.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listPolicies)

	// POST /api/admin/policies
	createPolicy, _ := r.NewOperationContext(http.MethodPost, "/api/admin/policies")
	createPolicy.SetSummary("Create policy")
	createPolicy.SetDescription("Creates a game-type access policy. Requires admin_session cookie.")
	createPolicy.AddReqStructure(AdminPolicyRequest{})
	createPolicy.AddRespStructure(policy.Policy{}, openapi.WithHTTPStatus(http.StatusCreated))
	createPolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	createPolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	createPolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(createPolicy)

	// GET /api/admin/policies/{id}
	getPolicy, _ := r.NewOperationContext(http.MethodGet, "/api/admin/policies/{id}")
	getPolicy.SetSummary("Get policy")
	getPolicy.SetDescription("Returns one policy. Requires admin_session cookie.")
	getPolicy.AddRespStructure(policy.Policy{}, openapi.WithHTTPStatus(http.StatusOK))
	getPolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	getPolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getPolicy)

	// PUT /api/admin/policies/{id}
	updatePolicy, _ := r.NewOperationContext(http.MethodPut, "/api/admin/policies/{id}")
	updatePolicy.SetSummary("Update policy")
	updatePolicy.SetDescription("Replaces a policy's name and allowed routes. Requires admin_session cookie.")
	updatePolicy.AddReqStructure(AdminPolicyRequest{})
	updatePolicy.AddRespStructure(policy.Policy{}, openapi.WithHTTPStatus(http.StatusOK))
	updatePolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	updatePolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	updatePolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(updatePolicy)

	// DELETE /api/admin/policies/{id}
	deletePolicy, _ := r.NewOperationContext(http.MethodDelete, "/api/admin/policies/{id}")
	deletePolicy.SetSummary("Delete policy")
	deletePolicy.SetDescription("Deletes a policy. Requires admin_session cookie.")
	deletePolicy.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	deletePolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	deletePolicy.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(deletePolicy)

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
