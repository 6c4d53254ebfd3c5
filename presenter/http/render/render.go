package render

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/omni/tally-relay/logging"
)

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	enc := json.NewEncoder(w)

	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(res); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("failed to marshal JSON result")
	}
}

func Error(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := logging.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("request handling failed")
	} else {
		logger.WithError(err).Warn("bad request")
	}
	JSON(w, r, status, map[string]string{"error": err.Error()})
}
