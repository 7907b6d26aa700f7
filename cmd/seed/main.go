// Command seed loads demo accounts and catalogue products. It is idempotent:
// running it again resets passwords, prices and stock to the values below.
package main

import (
	"context"
	"fmt"
	"time"

	"order-fulfillment/internal/config"
	"order-fulfillment/internal/database"
	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/logger"
	"order-fulfillment/internal/repository"
	"order-fulfillment/internal/service"
	"order-fulfillment/migrations"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const demoPassword = "password123"

var demoUsers = []struct {
	email string
	name  string
	role  domain.Role
}{
	{"pembeli@example.com", "Pembeli Demo", domain.RoleBuyer},
	{"cs1@example.com", "CS Verifikasi", domain.RoleCS1},
	{"cs2@example.com", "CS Pengiriman", domain.RoleCS2},
}

var demoProducts = []struct {
	name  string
	price int64
	stock int
}{
	{"Papan Tulis Hitam 60x90cm", 375000, 30},
	{"Papan Tulis Putih 90x120cm", 525000, 20},
	{"Kapur Tulis Putih (isi 50)", 15000, 200},
	{"Spidol Whiteboard Hitam", 9500, 500},
	{"Penghapus Papan Tulis", 12000, 150},
	{"Meja Siswa Kayu Jati", 650000, 25},
	{"Kursi Siswa Besi", 285000, 40},
	{"Globe Dunia 30cm", 210000, 15},
	{"Peta Indonesia Dinding", 95000, 60},
	{"Rak Buku Kelas 5 Susun", 890000, 10},
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer dbService.Close()

	if err := database.RunMigrations(dbService.DB(), migrations.FS, ".", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := seedUsers(ctx, repository.NewUserRepository(dbService.DB()), log); err != nil {
		log.Fatal("Failed to seed users", zap.Error(err))
	}
	if err := seedProducts(ctx, repository.NewProductRepository(dbService.DBx()), log); err != nil {
		log.Fatal("Failed to seed products", zap.Error(err))
	}

	log.Info("Seed completed",
		zap.Int("users", len(demoUsers)),
		zap.Int("products", len(demoProducts)),
	)
}

func seedUsers(ctx context.Context, users repository.UserRepository, log *zap.Logger) error {
	hash, err := service.HashPassword(demoPassword)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, u := range demoUsers {
		user := &domain.User{
			ID:           uuid.New(),
			Email:        u.email,
			Name:         u.name,
			PasswordHash: hash,
			Role:         u.role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Upsert(ctx, user); err != nil {
			return fmt.Errorf("%s: %w", u.email, err)
		}
		log.Info("Seeded user", zap.String("email", u.email), zap.String("role", string(u.role)))
	}
	return nil
}

func seedProducts(ctx context.Context, products repository.ProductRepository, log *zap.Logger) error {
	now := time.Now()
	for _, p := range demoProducts {
		product := &domain.Product{
			ID:        uuid.New(),
			Name:      p.name,
			Price:     p.price,
			Stock:     p.stock,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := products.UpsertByName(ctx, product); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		log.Debug("Seeded product", zap.String("name", p.name), zap.String("id", product.ID.String()))
	}
	return nil
}
