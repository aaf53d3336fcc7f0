package handler

import (
	"context"
	"net/http"

	"github.com/wadjakorntonsri/ns-shortener/pkg/app"
	"github.com/wadjakorntonsri/ns-shortener/pkg/config"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	app.InitLogging(cfg)

	// On Vercel the local sqlite file is ephemeral; point DATABASE_URL at Turso.
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	go a.Dispatcher.Serve(context.Background())
	mux = a.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
