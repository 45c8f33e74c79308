package main

import (
	"mandown/circuitbreaker"
	"mandown/config"
	"mandown/game"
	"mandown/nats"
	"mandown/server"
)

func main() {
	conf := config.Init()

	circuitbreaker.InitBreakers()
	game.InitBackup(conf.BackupRedisURL)
	nats.Connect(conf.NatsURL)

	hub := game.NewHub(conf)
	hub.RestoreFromBackup()

	server.Start(conf, hub)
}
