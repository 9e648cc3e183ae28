package regler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	Rd "github.com/Eztof/PID/display"
	Rs "github.com/Eztof/PID/server"
	Rt "github.com/Eztof/PID/types"
)

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestView_SetupMux(t *testing.T) {
	view := makeTestView(t, nil)
	mux := view.SetupMux()

	t.Run("Websocket Endpoint answers", func(t *testing.T) {
		// websocket upgrade will fail in test, but check for the 400
		w := serve(mux, "GET", "/ws", "")
		assertStatus(t, w.Code, http.StatusBadRequest)
	})

	t.Run("Metrics Endpoint answers", func(t *testing.T) {
		w := serve(mux, "GET", "/metrics", "")
		assertStatus(t, w.Code, http.StatusOK)
		assertStringContains(t, w.Body.String(), "regler_trends_loaded")
	})

	t.Run("Version Endpoint answers with JSON", func(t *testing.T) {
		w := serve(mux, "GET", "/api/version", "")
		assertStatus(t, w.Code, http.StatusOK)

		var resp map[string]string
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		assertError(t, err, nil)
		assertString(t, resp["version"], "dev")
	})

	t.Run("Wrong method is refused", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1/analyze", "")
		assertStatus(t, w.Code, http.StatusMethodNotAllowed)
	})

	t.Run("API requests are counted", func(t *testing.T) {
		serve(mux, "GET", "/api/trends", "")
		assertStringContains(t, scrape(t, view.Stats), `regler_http_requests_total{code="200",method="GET"}`)
	})
}

func TestView_TrendsHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	t.Run("Lists every trend by name", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends", "")
		assertStatus(t, w.Code, http.StatusOK)

		var got []Rs.TrendInfo
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertInt(t, len(got), 2)
		assertString(t, got[0].Name, "Flow temp")
		assertString(t, got[1].Name, "Return temp")
		assertString(t, got[0].Source, "A")
		assertInt(t, got[0].Points, 100)
	})

	t.Run("Filters by query", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends?q=RETURN", "")
		var got []Rs.TrendInfo
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertInt(t, len(got), 1)
		assertInt(t, got[0].ID, 2)
	})

	t.Run("No match is an empty list", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends?q=nothing", "")
		assertString(t, strings.TrimSpace(w.Body.String()), "[]")
	})
}

func TestView_TrendHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	t.Run("Full trend", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1?full=1", "")
		assertStatus(t, w.Code, http.StatusOK)
		var got Rt.Trend
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertInt(t, len(got.Points), 100)
		assertString(t, got.Plain, "B01/Flow temp")
	})

	t.Run("Downsampled trend", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1?max=10", "")
		var got Rt.Trend
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertInt(t, len(got.Points), 10)
		assertFloat(t, got.Points[1].Value, 150)
	})

	t.Run("Derivative transform", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1?full=1&transform=derivative", "")
		assertStatus(t, w.Code, http.StatusOK)
		var got Rt.Trend
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertInt(t, len(got.Points), 99)
		assertFloat(t, got.Points[9].Value, 150)
		assertFloat(t, got.Points[19].Value, -50)
	})

	t.Run("Unknown transform", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1?transform=fourier", "")
		assertStatus(t, w.Code, http.StatusBadRequest)
		assertStringContains(t, w.Body.String(), "unknown transformer")
	})

	t.Run("Bad max", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1?max=-3", "")
		assertStatus(t, w.Code, http.StatusBadRequest)
	})

	t.Run("Unknown trend", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/99", "")
		assertStatus(t, w.Code, http.StatusNotFound)
		assertStringContains(t, w.Body.String(), "trend not found")
	})

	t.Run("Defaults without a sheet", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1/defaults", "")
		assertStatus(t, w.Code, http.StatusOK)
		var got struct {
			Params   Rt.TuningParameters `json:"params"`
			Setpoint Rt.Metric           `json:"setpoint"`
		}
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertFloat(t, got.Params.ProportionalBand, 50)
		if got.Setpoint.Valid {
			t.Errorf("expected no setpoint, got %v", got.Setpoint)
		}
	})
}

func TestView_AnalyzeHandler(t *testing.T) {
	view := makeTestView(t, nil)
	mux := view.SetupMux()

	t.Run("Empty body uses the defaults", func(t *testing.T) {
		w := serve(mux, "POST", "/api/trends/1/analyze", "")
		assertStatus(t, w.Code, http.StatusOK)

		var got Rs.Report
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertString(t, got.Trend, "Flow temp")
		assertString(t, strings.Join(got.Fired, ","), "overshoot")
		assertFloat(t, got.Suggestion.Parameters.ProportionalBand, 62.5)
		assertFloat(t, got.Suggestion.Parameters.IntegralTime, 3.6)
		assertInt(t, got.Suggestion.Parameters.LeadTime, 1)
		if view.Report == nil || view.Report.ID != got.ID {
			t.Errorf("view did not keep the report")
		}
	})

	t.Run("Body overrides setpoint and unit", func(t *testing.T) {
		w := serve(mux, "POST", "/api/trends/1/analyze", `{"setpoint": 110, "unit": "°C"}`)
		assertStatus(t, w.Code, http.StatusOK)

		var got Rs.Report
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertString(t, strings.Join(got.Fired, ","), "overshoot,offset")
		assertString(t, got.Unit, "°C")
		if got.Previous == nil {
			t.Errorf("expected a link to the previous report")
		}
	})

	t.Run("Bad JSON", func(t *testing.T) {
		w := serve(mux, "POST", "/api/trends/1/analyze", `{"setpoint":`)
		assertStatus(t, w.Code, http.StatusBadRequest)
	})

	t.Run("Bad parameter value", func(t *testing.T) {
		w := serve(mux, "POST", "/api/trends/1/analyze", `{"params": {"tN": "slow"}}`)
		assertStatus(t, w.Code, http.StatusBadRequest)
		assertStringContains(t, w.Body.String(), "invalid tuning parameters")
	})

	t.Run("Unknown trend", func(t *testing.T) {
		w := serve(mux, "POST", "/api/trends/42/analyze", "")
		assertStatus(t, w.Code, http.StatusNotFound)
	})
}

func TestView_ExportHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	w := serve(mux, "POST", "/api/trends/2/export", "")
	assertStatus(t, w.Code, http.StatusOK)
	assertString(t, w.Header().Get("Content-Type"), "text/csv; charset=utf-8")
	assertStringContains(t, w.Header().Get("Content-Disposition"), `"Return temp.csv"`)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assertInt(t, len(lines), 2)
	assertString(t, lines[0], strings.Join(Rs.ExportHeader, ","))
	assertStringContains(t, lines[1], "Return temp,62.5,3.6,1,")
}

func TestView_ExportHandler_PartialParams(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	w := serve(mux, "POST", "/api/trends/2/export", `{"params": {"XPY1": 60}}`)
	assertStatus(t, w.Code, http.StatusOK)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assertInt(t, len(lines), 2)
	assertString(t, lines[1], "Return temp,75,3.6,1,0,20,95,1.5,0")
}

func TestView_ReportHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	w := serve(mux, "POST", "/api/trends/1/report", "")
	assertStatus(t, w.Code, http.StatusOK)
	assertString(t, w.Header().Get("Content-Type"), "application/pdf")
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Errorf("response is not a PDF")
	}
}

func TestView_PlotHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	t.Run("Before any analysis", func(t *testing.T) {
		w := serve(mux, "GET", "/api/trends/1/plot", "")
		assertStatus(t, w.Code, http.StatusOK)
		assertString(t, w.Header().Get("Content-Type"), "image/png")
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
			t.Errorf("response is not a PNG")
		}
	})

	t.Run("After an analysis", func(t *testing.T) {
		serve(mux, "POST", "/api/trends/1/analyze", `{"setpoint": 110}`)
		w := serve(mux, "GET", "/api/trends/1/plot", "")
		assertStatus(t, w.Code, http.StatusOK)
	})
}

func TestView_ReloadHandler(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	w := serve(mux, "POST", "/api/reload", "")
	assertStatus(t, w.Code, http.StatusOK)
	assertString(t, strings.TrimSpace(w.Body.String()), `{"trends":2}`)
}

func TestView_CacheHandlers(t *testing.T) {
	mux := makeTestView(t, nil).SetupMux()

	t.Run("Lists cached trends", func(t *testing.T) {
		w := serve(mux, "GET", "/api/cache", "")
		assertStatus(t, w.Code, http.StatusOK)
		var got []string
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertString(t, strings.Join(got, ","), "A/Flow temp,A/Return temp")
	})

	t.Run("Range before the recording is empty", func(t *testing.T) {
		w := serve(mux, "GET", "/api/cache?to=2025-01-01", "")
		assertStatus(t, w.Code, http.StatusOK)
		assertString(t, strings.TrimSpace(w.Body.String()), "[]")
	})

	t.Run("Bad range", func(t *testing.T) {
		w := serve(mux, "GET", "/api/cache?from=yesterday", "")
		assertStatus(t, w.Code, http.StatusBadRequest)
	})

	t.Run("Reads a cached trend", func(t *testing.T) {
		w := serve(mux, "GET", "/api/cache/A/Flow%20temp", "")
		assertStatus(t, w.Code, http.StatusOK)
		var got Rt.Trend
		assertError(t, json.Unmarshal(w.Body.Bytes(), &got), nil)
		assertString(t, got.Name, "Flow temp")
		assertInt(t, len(got.Points), 100)
	})

	t.Run("Unknown cached trend", func(t *testing.T) {
		w := serve(mux, "GET", "/api/cache/A/nope", "")
		assertStatus(t, w.Code, http.StatusNotFound)
	})
}

func TestView_VersionHandler(t *testing.T) {
	w := httptest.NewRecorder()
	view := &Rd.View{}
	view.VersionHandler(w, httptest.NewRequest("GET", "/api/version", nil))

	assertStatus(t, w.Code, http.StatusOK)
	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	assertStringContains(t, response["version"], "dev")
}
