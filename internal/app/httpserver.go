package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clubsphere/movement-score/internal/export"
	"github.com/clubsphere/movement-score/internal/metrics"
	"github.com/clubsphere/movement-score/internal/observability"
)

type HTTPServer struct {
	srv *http.Server
}

func StartHTTP(ctx context.Context, addr string, db *sql.DB) *HTTPServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	// Semester summary workbook for reporting consumers
	// (GET /export?semester_id=N).
	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("semester_id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "semester_id must be a positive integer", http.StatusBadRequest)
			return
		}
		sheets, err := export.BuildSemesterSheets(r.Context(), db, id)
		if err != nil {
			observability.CaptureErr("export", err)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		wb, err := export.NewWorkbook(sheets)
		if err != nil {
			observability.CaptureErr("export", err)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=movement_semester_%d.xlsx", id))
		if err := wb.WriteTo(w); err != nil {
			observability.CaptureErr("export", err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = srv.ListenAndServe() // closed via Shutdown below
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}
