package nats

import (
	"mandown/circuitbreaker"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

var conn *nats.Conn

func Connect(natsUrl string) {
	if natsUrl == "" {
		// No NATS server configured, do nothing.
		log.Info("No nats server configured")
		return
	}

	c, err := nats.Connect(natsUrl)
	if err != nil {
		log.WithError(err).Error("Failed to connect to nats")
		return
	}

	log.Info("Connected to nats at ", natsUrl)
	conn = c
}

// Publish is fire and forget: gameplay never waits on the event bus.
func Publish(subject string, data []byte) {
	if conn == nil {
		return
	}

	_, err := circuitbreaker.NatsBreaker.Execute(func() (interface{}, error) {
		return nil, conn.Publish(subject, data)
	})
	if err != nil {
		log.WithError(err).Error("Failed to publish message")
	}
}
