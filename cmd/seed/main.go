// Command seed registers local documents as a session so the analysis can be run
// without the intake platform. The directory holds one subdirectory per
// category (statements, taxes, financial) and an optional conversation.json
// with [{"role": "...", "content": "..."}] turns.
package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"
	"ikap-analysis/internal/service"
	"ikap-analysis/pkg/auth"
	"ikap-analysis/pkg/config"
	"ikap-analysis/pkg/logger"
	"ikap-analysis/pkg/postgres"
	"ikap-analysis/pkg/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	var (
		dir       = flag.String("dir", filepath.Join("cmd", "seed", "session"), "Directory with category subdirectories")
		sessionID = flag.String("session", "", "Session ID (generated when empty)")
		token     = flag.Bool("token", true, "Print an API token for the session")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	if *sessionID == "" {
		*sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(*sessionID); err != nil {
		appLogger.Fatal("Session ID must be a UUID", zap.String("session_id", *sessionID))
	}

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	fileRepo := repository.NewFileRepository(db, retry.DefaultStorage, appLogger)
	messageRepo := repository.NewMessageRepository(db, retry.DefaultStorage, appLogger)

	appLogger.Info("Starting session seeding...", zap.String("session_id", *sessionID), zap.String("dir", *dir))

	cacheFile := filepath.Join(*dir, ".seed_cache.json")
	if err := seedFiles(ctx, *dir, *sessionID, cacheFile, fileRepo, appLogger); err != nil {
		appLogger.Fatal("Failed to seed session files", zap.Error(err))
	}
	if err := seedConversation(ctx, filepath.Join(*dir, "conversation.json"), *sessionID, messageRepo, appLogger); err != nil {
		appLogger.Fatal("Failed to seed conversation", zap.Error(err))
	}

	appLogger.Info("Session seeding completed successfully!", zap.String("session_id", *sessionID))

	if *token {
		jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)
		signed, err := jwtManager.GenerateToken("seed", "manager")
		if err != nil {
			appLogger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Printf("session: %s\ntoken: %s\n", *sessionID, signed)
	}
}

// ProcessedFile represents a registered file in cache
type ProcessedFile struct {
	FileID      string    `json:"file_id"`
	FileHash    string    `json:"file_hash"`
	SessionID   string    `json:"session_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData stores information about registered files
type CacheData struct {
	ProcessedFiles map[string]ProcessedFile `json:"processed_files"` // key: file path
}

// loadCache loads the cache of registered files
func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{
		ProcessedFiles: make(map[string]ProcessedFile),
	}

	if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
		return cache, nil
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}

	return cache, nil
}

// saveCache saves the cache of registered files
func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// calculateFileHash calculates MD5 hash of a file
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// seedFiles stores every file under <dir>/<category> with its bytes in the
// database. Ids carry the local- prefix so the resolver never asks the
// remote provider for them.
func seedFiles(ctx context.Context, dir, sessionID, cacheFile string, repo *repository.FileRepository, logger *zap.Logger) error {
	cache, err := loadCache(cacheFile)
	if err != nil {
		logger.Warn("Failed to load cache, will register all files", zap.Error(err))
		cache = &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}
	}

	registered := 0
	for _, category := range models.Categories {
		entries, err := os.ReadDir(filepath.Join(dir, string(category)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s directory: %w", category, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			path := filepath.Join(dir, string(category), entry.Name())

			fileHash, err := calculateFileHash(path)
			if err != nil {
				logger.Warn("Failed to hash file, skipping", zap.String("path", path), zap.Error(err))
				continue
			}
			if cached, exists := cache.ProcessedFiles[path]; exists && cached.FileHash == fileHash && cached.SessionID == sessionID {
				logger.Info("File already registered, skipping",
					zap.String("path", path),
					zap.Time("processed_at", cached.ProcessedAt),
				)
				continue
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			f := &models.File{
				ID:           "local-" + uuid.NewString(),
				SessionID:    sessionID,
				Category:     category,
				OriginalName: service.NormalizeFileName(entry.Name()),
				SizeBytes:    int64(len(data)),
				MimeType:     mimeByExt(entry.Name()),
				UploadedAt:   time.Now().UTC(),
			}
			if err := repo.Create(ctx, f, data); err != nil {
				return fmt.Errorf("failed to register %s: %w", path, err)
			}
			registered++

			logger.Info("Registered file",
				zap.String("path", path),
				zap.String("category", string(category)),
				zap.String("file_id", f.ID),
			)

			cache.ProcessedFiles[path] = ProcessedFile{
				FileID:      f.ID,
				FileHash:    fileHash,
				SessionID:   sessionID,
				ProcessedAt: time.Now(),
			}
		}
	}

	if err := saveCache(cacheFile, cache); err != nil {
		logger.Warn("Failed to save cache", zap.Error(err))
	} else {
		logger.Info("Cache saved", zap.Int("registered", registered), zap.Int("known_files", len(cache.ProcessedFiles)))
	}
	return nil
}

func seedConversation(ctx context.Context, path, sessionID string, repo *repository.MessageRepository, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read conversation: %w", err)
	}

	var turns []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &turns); err != nil {
		return fmt.Errorf("failed to parse conversation: %w", err)
	}

	// Spread timestamps so the stored order matches the file order.
	start := time.Now().UTC().Add(-time.Duration(len(turns)) * time.Second)
	for i, t := range turns {
		m := &models.Message{
			SessionID: sessionID,
			Role:      models.Role(t.Role),
			Content:   t.Content,
			CreatedAt: start.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, m); err != nil {
			return fmt.Errorf("failed to store message %d: %w", i+1, err)
		}
	}
	logger.Info("Conversation stored", zap.Int("messages", len(turns)))
	return nil
}

func mimeByExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}
