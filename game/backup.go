package game

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"

	"mandown/circuitbreaker"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var ctx = context.Background()
var client *redis.Client
var hostname string = os.Getenv("HOSTNAME")

// RoomBackup is the crash-recovery record for one room: enough to bring the
// room code back after a restart. Backups live only as long as the room and
// are deleted at teardown.
type RoomBackup struct {
	ID           string
	CurrentLevel int
}

func InitBackup(redisURL string) {
	if redisURL == "" {
		log.Info("No backup redis configured")
		return
	}

	client = redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: "",
		DB:       0,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		log.WithError(err).Error("Failed to connect to Redis")
	} else {
		log.Info("Connected to Redis at ", redisURL)
	}
}

func toBytes(b RoomBackup) []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(b); err != nil {
		log.WithError(err).Error("Failed to encode room backup")
	}

	return buf.Bytes()
}

func fromBytes(data []byte) RoomBackup {
	var b RoomBackup
	dec := gob.NewDecoder(bytes.NewReader(data))

	if err := dec.Decode(&b); err != nil {
		log.WithError(err).Error("Failed to decode room backup")
	}

	return b
}

func SaveToBackup(b RoomBackup) {
	if client == nil {
		return
	}

	_, err := circuitbreaker.RedisBreaker.Execute(func() (interface{}, error) {
		return nil, client.Set(ctx, hostname+":"+b.ID, toBytes(b), 0).Err()
	})
	if err != nil {
		log.WithError(err).Error("Failed to save room backup")
	}
}

func LoadBackup() []RoomBackup {
	if client == nil {
		return nil
	}

	keys, err := client.Keys(ctx, hostname+":*").Result()
	if err != nil {
		log.WithError(err).Error("Failed to get backup keys")
		return nil
	}

	backups := make([]RoomBackup, 0, len(keys))
	for _, key := range keys {
		data, err := client.Get(ctx, key).Result()
		if err != nil {
			log.WithError(err).Error("Failed to get room backup")
			continue
		}
		backups = append(backups, fromBytes([]byte(data)))
	}

	return backups
}

func DeleteBackup(roomID string) {
	if client == nil {
		return
	}

	_, err := circuitbreaker.RedisBreaker.Execute(func() (interface{}, error) {
		return nil, client.Del(ctx, hostname+":"+roomID).Err()
	})
	if err != nil {
		log.WithError(err).Error("Failed to delete room backup")
	}
}
