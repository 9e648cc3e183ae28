package regler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	Rs "github.com/Eztof/PID/server"
	"github.com/gorilla/websocket"
)

// AnalysisRequest is one message received over the websocket
type AnalysisRequest struct {
	Trend    int             `json:"trend"`
	Params   json.RawMessage `json:"params,omitempty"` // partial TuningParameters
	Setpoint *float64        `json:"setpoint,omitempty"`
	Unit     *string         `json:"unit,omitempty"`
}

// AnalysisError answers a request that could not be served
type AnalysisError struct {
	Trend int    `json:"trend"`
	Error string `json:"error"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler answers every AnalysisRequest with a Report,
// so a UI can re-run the analysis while parameters are edited
func (v *View) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", slog.Any("Error", err))
		return
	}
	defer conn.Close()

	for {
		var req AnalysisRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				// the message was consumed, the connection stays usable
				if werr := conn.WriteJSON(AnalysisError{Error: "invalid request: " + err.Error()}); werr == nil {
					continue
				}
			}
			return
		}

		report, err := v.Bench.Analyze(r.Context(), req.Trend, Rs.AnalyzeRequest{
			Params:   req.Params,
			Setpoint: req.Setpoint,
			Unit:     req.Unit,
		})
		var reply any = report
		if err != nil {
			reply = AnalysisError{Trend: req.Trend, Error: err.Error()}
		}
		if err := conn.WriteJSON(reply); err != nil {
			return // Connection closed
		}
	}
}
