/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/julienschmidt/httprouter"
)

func registerProfileHandlers(cfg *Config, mux *httprouter.Router, rm *RoomManager) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handler("GET", cfg.prefix+"/pprof/"+name, pprof.Handler(name))
	}

	mux.HandlerFunc("GET", cfg.prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", cfg.prefix+"/pprof/trace", pprof.Trace)

	mux.GET(cfg.prefix+"/pprof/rooms", serveRoomStats(cfg, rm))
}

// serveRoomStats lists every open room, one per line.
func serveRoomStats(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		var out strings.Builder
		for _, s := range rm.stats() {
			fmt.Fprintf(&out, "%s\t%s\tplayers=%d\tpieces=%d\tstarted=%t\tidle=%s\n",
				s.ID, s.Difficulty, s.Players, s.Pieces, s.Started, s.Idle)
		}

		_, _ = w.Write([]byte(out.String()))
	}
}
