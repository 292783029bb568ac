package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/repository"
	"github.com/relaypoint/mailadmin/internal/storage"
)

// APIKeyService issues and validates the credentials the MTA frontends use
// when asking for send-quota decisions. Validation results are cached in
// redis for a few minutes to keep the hot path off the database.
type APIKeyService struct {
	repository *repository.APIKeyRepository
	redis      *storage.RedisClient
}

func NewAPIKeyService(repo *repository.APIKeyRepository, redis *storage.RedisClient) *APIKeyService {
	return &APIKeyService{
		repository: repo,
		redis:      redis,
	}
}

func (s *APIKeyService) Create(ctx context.Context, name, createdBy string) (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	key := "ma_" + base64.URLEncoding.EncodeToString(keyBytes)

	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	apiKey := models.APIKey{
		KeyHash:   keyHash,
		Name:      name,
		CreatedBy: createdBy,
		IsActive:  true,
	}

	if err := s.repository.Create(ctx, &apiKey); err != nil {
		return "", fmt.Errorf("failed to create API key: %w", err)
	}

	// Return plain key (only time it's visible)
	return key, nil
}

func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	cacheKey := fmt.Sprintf("apikey:cache:%s", keyHash)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var apiKey models.APIKey
			if err := json.Unmarshal([]byte(cached), &apiKey); err == nil {
				return &apiKey, nil
			}
		}
	}

	apiKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	if apiKey == nil {
		return nil, nil
	}

	if s.redis != nil {
		apiKeyJSON, _ := json.Marshal(apiKey)
		s.redis.Set(ctx, cacheKey, apiKeyJSON, 5*time.Minute)
	}

	return apiKey, nil
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	return s.repository.List(ctx)
}

// Revoke deactivates a key and drops it from the validation cache so it
// stops working immediately rather than when the cache entry expires.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	apiKey, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repository.Deactivate(ctx, id); err != nil {
		return err
	}

	if s.redis != nil && apiKey != nil {
		s.redis.Del(ctx, fmt.Sprintf("apikey:cache:%s", apiKey.KeyHash))
	}

	return nil
}

func (s *APIKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID) {
	s.repository.UpdateLastUsed(ctx, id)
}
