/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/partypuzzle/render"
	"github.com/Seednode/partypuzzle/slicer"
	"github.com/Seednode/partypuzzle/store"
)

const maxSessionBody = 4 << 20

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func sessionError(cfg *Config, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}

	_ = writeJSON(cfg, w, status, map[string]string{"detail": http.StatusText(status)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBody)

	return json.NewDecoder(r.Body).Decode(v)
}

func serveCreateSession(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req store.Session
		if err := decodeBody(w, r, &req); err != nil || req.UserID == "" {
			_ = writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"detail": "user_id is required"})
			return
		}

		if req.Difficulty != "" {
			d, err := slicer.ParseDifficulty(req.Difficulty)
			if err != nil {
				_ = writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
				return
			}
			req.Difficulty = string(d)
		}

		sess, err := st.Create(r.Context(), store.Session{
			UserID:     req.UserID,
			ImageURL:   req.ImageURL,
			Title:      req.Title,
			Difficulty: req.Difficulty,
		})
		if err != nil {
			errs <- err
			sessionError(cfg, w, err)
			return
		}

		if err := writeJSON(cfg, w, http.StatusOK, sess); err != nil {
			errs <- err
			return
		}

		logf(cfg, "SESSIONS: Created %s for %q in %s",
			sess.ID,
			sess.UserID,
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveGetSession(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := st.Get(r.Context(), ps.ByName("id"))
		if err != nil {
			sessionError(cfg, w, err)
			return
		}

		if err := writeJSON(cfg, w, http.StatusOK, sess); err != nil {
			errs <- err
		}
	}
}

func serveSaveSession(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")

		var snap store.Snapshot
		if err := decodeBody(w, r, &snap); err != nil {
			_ = writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"detail": "invalid snapshot"})
			return
		}

		if err := st.Save(r.Context(), id, snap); err != nil {
			sessionError(cfg, w, err)
			return
		}

		if err := writeJSON(cfg, w, http.StatusOK, map[string]string{"status": "saved"}); err != nil {
			errs <- err
			return
		}

		logf(cfg, "SESSIONS: Saved %s (%d pieces, %ds elapsed)", id, len(snap.Pieces), snap.Elapsed)
	}
}

func serveHistory(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		list, err := st.History(r.Context(), ps.ByName("userid"))
		if err != nil {
			errs <- err
			sessionError(cfg, w, err)
			return
		}

		if list == nil {
			list = []store.Session{}
		}

		if err := writeJSON(cfg, w, http.StatusOK, list); err != nil {
			errs <- err
		}
	}
}

// previewImage loads a session's picture for its certificate. Remote
// pictures are only fetched when the server is configured to.
func previewImage(ctx context.Context, cfg *Config, ref string) image.Image {
	if ref == "" {
		return nil
	}
	if !cfg.fetchImages && !strings.HasPrefix(ref, "data:") {
		return nil
	}
	if !strings.HasPrefix(ref, "data:") && !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout/2)
	defer cancel()

	img, err := slicer.Open(ctx, http.DefaultClient, ref)
	if err != nil {
		logf(cfg, "SESSIONS: No certificate preview: %v", err)
		return nil
	}

	return img
}

func serveCertificate(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		sess, err := st.Get(r.Context(), ps.ByName("id"))
		if err != nil {
			sessionError(cfg, w, err)
			return
		}

		player := strings.TrimSpace(r.URL.Query().Get("player"))
		if player == "" {
			player = sess.UserID
		}

		title := sess.Title
		if title == "" {
			title = "Jigsaw puzzle"
		}

		var buf bytes.Buffer
		err = render.WriteCertificate(&buf, render.Certificate{
			Title:     title,
			Player:    player,
			Elapsed:   sess.Elapsed,
			Pieces:    len(sess.Pieces),
			Completed: sess.Completed,
			Finished:  sess.UpdatedAt,
			Preview:   previewImage(r.Context(), cfg, sess.ImageURL),
			Link:      requestScheme(r) + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/certificate"),
		})
		switch {
		case errors.Is(err, render.ErrNotCompleted):
			_ = writeJSON(cfg, w, http.StatusConflict, map[string]string{"detail": err.Error()})
			return
		case err != nil:
			errs <- err
			sessionError(cfg, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="certificate-`+sess.ID+`.pdf"`)
		securityHeaders(cfg, w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			errs <- err
			return
		}

		logf(cfg, "SERVE: Certificate for %s (%s) to %s in %s",
			sess.ID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// registerSessions sets up the single-player session API under path:
//   - POST $path/session                  → create a session
//   - GET  $path/session/:id              → session with its latest snapshot
//   - POST $path/session/:id/save         → replace the snapshot
//   - GET  $path/session/:id/certificate  → PDF completion certificate
//   - GET  $path/history/:userid          → a user's sessions, newest first
func registerSessions(cfg *Config, path string, st store.Store, errs chan<- error, mux *httprouter.Router) {
	mux.POST(cfg.prefix+path+"/session", serveCreateSession(cfg, st, errs))
	mux.GET(cfg.prefix+path+"/session/:id", serveGetSession(cfg, st, errs))
	mux.POST(cfg.prefix+path+"/session/:id/save", serveSaveSession(cfg, st, errs))
	mux.GET(cfg.prefix+path+"/session/:id/certificate", serveCertificate(cfg, st, errs))
	mux.GET(cfg.prefix+path+"/history/:userid", serveHistory(cfg, st, errs))
}
