package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/config"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/migrations"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var subjects = []string{"math", "physics", "chemistry", "biology", "literature"}

func main() {
	rollback := flag.Bool("rollback", false, "revert the last migration and exit")
	flag.Parse()

	cfg := config.Load()

	if *rollback {
		if err := migrations.Rollback(cfg.DB.URL()); err != nil {
			log.Fatalf("❌ Rollback failed: %v", err)
		}
		return
	}

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	// Common password for all students
	password := "password123"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	log.Printf("🌱 Seeding %d students...", len(subjects)*2)

	for i := 1; i <= len(subjects)*2; i++ {
		handle := fmt.Sprintf("student%d", i)
		email := fmt.Sprintf("%s@studymate.local", handle)

		var existing model.User
		if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
			if !existing.IsEmailVerified() {
				now := time.Now()
				db.Model(&existing).Update("email_verified_at", &now)
				log.Printf("🔄 Marked %s as verified", handle)
			}
			continue
		}

		now := time.Now()
		user := model.User{
			ID:                    uuid.New(),
			Name:                  fmt.Sprintf("Student %d (%s)", i, subjects[(i-1)%len(subjects)]),
			Email:                 email,
			Password:              string(hashedPassword),
			AuthProvider:          model.AuthProviderEmail,
			EmailVerifiedAt:       &now,
			IsNotificationEnabled: i%4 != 0,
			Avatar:                fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", handle),
		}

		if err := db.Create(&user).Error; err != nil {
			log.Printf("❌ Failed to create student %s: %v", handle, err)
		} else {
			log.Printf("✅ Created student: %s | Email: %s | Pass: %s", handle, email, password)
		}
	}

	seedPendingStudent(db, string(hashedPassword))

	log.Println("🎉 Seeding completed!")
}

// seedPendingStudent leaves one account unverified so the signup code flow
// can be tried with resend-otp against a known email.
func seedPendingStudent(db *gorm.DB, hashedPassword string) {
	email := "pending@studymate.local"

	var count int64
	db.Model(&model.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return
	}

	user := model.User{
		ID:                    uuid.New(),
		Name:                  "Pending Student",
		Email:                 email,
		Password:              hashedPassword,
		AuthProvider:          model.AuthProviderEmail,
		IsNotificationEnabled: true,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Printf("❌ Failed to create pending student: %v", err)
		return
	}
	log.Printf("✅ Created unverified student: %s (request a code via /api/v1/auth/resend-otp)", email)
}
