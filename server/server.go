package server

import (
	"encoding/json"
	"net/http"

	"mandown/config"
	"mandown/game"

	log "github.com/sirupsen/logrus"
)

func Start(conf config.Config, hub *game.Hub) {
	mux := http.NewServeMux()

	mux.HandleFunc("/connect", hub.HandleConnection)

	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		room := hub.CreateRoom()
		w.Write([]byte(room.ID))
	})

	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.RunningRoomIDs())
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	log.Info("Listening on :", conf.HTTPPort)
	if err := http.ListenAndServe(":"+conf.HTTPPort, mux); err != nil {
		log.WithError(err).Fatal("HTTP server stopped")
	}
}
