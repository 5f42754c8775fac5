package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// serviceName stamps every structured line so aggregated logs from the api
// and migrate binaries stay attributable.
const serviceName = "counselhub"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
// A missing "service" field is filled in; callers may override it.
func LogRequest(entry map[string]any) {
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","service":"` + serviceName + `","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
