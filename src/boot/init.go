package boot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hallpass/src/common"
	"hallpass/src/config"
	"hallpass/src/db"
	"hallpass/src/lib"
	"hallpass/src/models"
	"hallpass/src/services"
	"hallpass/src/utils"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"
)

func InitDb(cfg *config.Config) *gorm.DB {
	db := db.GetDb(cfg)

	err := db.AutoMigrate(
		&models.User{},
		&models.Pass{},
		&models.PassStatusChange{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

func InitStore(cfg *config.Config) db.PassStore {
	if cfg.StoreDriver == "memory" {
		log.Println("Using in-memory pass store. Data is lost on restart")
		return db.NewMemoryStore()
	}
	return db.NewGormStore(InitDb(cfg), cfg.StoreTimeout)
}

// InitSigner loads the pass token secret from the environment, then from AWS
// Secrets Manager. Outside production a random secret is generated as a last
// resort, which invalidates every issued pass code on restart.
func InitSigner(ctx context.Context, cfg *config.Config) (*utils.Signer, error) {
	secret := cfg.PassTokenSecret
	if len(secret) == 0 && cfg.PassSecretID != "" {
		client, err := lib.AWSGetSecretsManagerClient(ctx)
		if err != nil {
			return nil, err
		}
		secret, err = lib.GetHexSecret(ctx, client, cfg.PassSecretID)
		if err != nil {
			return nil, err
		}
	}
	if len(secret) == 0 {
		if cfg.IsProd() {
			return nil, errors.New("PASS_TOKEN_SECRET or PASS_SECRET_ID is required in production")
		}
		log.Println("WARNING: no pass token secret configured, generating one for this run")
		generated, err := utils.GenerateSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
	}
	return utils.NewSigner(secret)
}

func InitService(cfg *config.Config, store db.PassStore, signer *utils.Signer) *services.PassService {
	opts := []services.Option{
		services.WithPublisher(common.NewEventPublisher(cfg.PassEventsTopic, cfg.SchoolLocation)),
	}
	rd := lib.GetRedisClient()
	opts = append(opts, services.WithQRCodeRenderer(lib.NewQRCodeCache(rd, cfg.QRCacheTTL)))
	if rd != nil {
		opts = append(opts, services.WithThrottle(lib.NewVerifyThrottle(rd, cfg.VerifyMaxFailures, cfg.VerifyFailureWindow)))
	}
	svc := services.NewPassService(store, signer, services.Policy{
		Location:    cfg.SchoolLocation,
		DayEnd:      cfg.SchoolDayEnd,
		OutingGrace: cfg.OutingGrace,
	}, opts...)
	return services.SetPassService(svc)
}

func InitBroker(ctx context.Context, cfg *config.Config) {
	if !lib.KafkaEnabled() {
		log.Println("No kafka broker configured, pass events are not published")
		return
	}
	if err := lib.KafkaCreateTopics(ctx, cfg.PassEventsTopic, cfg.EmailsTopic); err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
	}
	common.Consumers(ctx)
}

func InitScheduler(cfg *config.Config, svc *services.PassService) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	_, err = lib.CreateIntervalJob("expire-passes", cfg.ExpirySweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ExpirySweepInterval)
		defer cancel()
		if _, err := svc.SweepExpired(ctx, cfg.ExpirySweepBatch); err != nil {
			log.Printf("[expiry] Error sweeping passes: %s\n", err.Error())
		}
	})
	if err != nil {
		log.Printf("Error scheduling expiry sweep: %s\n", err.Error())
		return
	}
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	lib.StopScheduler()
}

// SeedUsers upserts the users listed in a JSON file.
func SeedUsers(ctx context.Context, store db.PassStore, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("could not read seed file: %w", err)
	}
	var users []models.User
	if err := json.Unmarshal(b, &users); err != nil {
		return 0, fmt.Errorf("could not parse seed file %s: %w", path, err)
	}
	count := 0
	for i := range users {
		u := &users[i]
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			log.Printf("Skipping seed user without id: %s\n", u.Email)
			continue
		}
		if err := store.SaveUser(ctx, u); err != nil {
			return count, err
		}
		count++
	}
	log.Printf("Seeded %d users from %s\n", count, path)
	return count, nil
}
