package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// LoggerMW — access log. Идентичность проставляется позже (в Authenticate на
// саброутере), поэтому пользователь здесь не пишется.
func LoggerMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		e := Log(r).WithFields(logrus.Fields{
			"method": r.Method,
			"uri":    r.RequestURI,
			"status": sw.status,
			"bytes":  sw.bytes,
			"dur":    time.Since(start).String(),
			"ip":     r.RemoteAddr,
		})
		switch {
		case sw.status >= 500:
			e.Error("request")
		case sw.status >= 400:
			e.Warn("request")
		default:
			e.Info("request")
		}
	})
}
