package server

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// Издатель сервисных токенов Bot Framework (входящие активности)
	botFrameworkIssuer = "https://api.botframework.com"

	// Метаданные OpenID с актуальным набором ключей подписи
	botFrameworkMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"

	// Ключи ротируются редко, сутки кэша достаточно
	jwksTTL = 24 * time.Hour
)

// TokenValidator — интерфейс проверки Bearer-токена входящей активности.
type TokenValidator interface {
	VerifyToken(tokenStr string) error
}

// BotTokenValidator проверяет RS256-подпись сервисного JWT Bot Framework
// по набору публичных ключей (JWKS), который издатель публикует через
// OpenID-метаданные. Ключи кэшируются и перечитываются по TTL или при
// появлении неизвестного kid (ротация).
type BotTokenValidator struct {
	appID       string
	metadataURL string
	client      *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewBotTokenValidator(appID string) *BotTokenValidator {
	return &BotTokenValidator{
		appID:       appID,
		metadataURL: botFrameworkMetadataURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyToken реализует интерфейс TokenValidator.
// Подпись — RS256 по ключу из JWKS; issuer и audience (наш App ID)
// проверяются самим парсером.
func (v *BotTokenValidator) VerifyToken(tokenStr string) error {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)

	token, err := jwt.Parse(tokenStr,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			kid, _ := token.Header["kid"].(string)
			return v.keyForKid(kid)
		},
		jwt.WithIssuer(botFrameworkIssuer),
		jwt.WithAudience(v.appID),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

// keyForKid отдает ключ из кэша, при промахе или протухании — перечитывает JWKS.
func (v *BotTokenValidator) keyForKid(kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.keys[kid]; ok && time.Since(v.fetchedAt) < jwksTTL {
		return key, nil
	}

	if err := v.refreshKeys(); err != nil {
		return nil, err
	}

	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}
	return key, nil
}

type openIDMetadata struct {
	JwksURI string `json:"jwks_uri"`
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *BotTokenValidator) refreshKeys() error {
	// 1. Метаданные → адрес JWKS
	var meta openIDMetadata
	if err := v.getJSON(v.metadataURL, &meta); err != nil {
		return fmt.Errorf("fetch openid metadata: %w", err)
	}

	// 2. Сам набор ключей
	var doc jwksDocument
	if err := v.getJSON(meta.JwksURI, &doc); err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}

	// 3. Восстанавливаем rsa.PublicKey из компонент N и E
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("jwks document contains no usable RSA keys")
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

func (v *BotTokenValidator) getJSON(url string, dst interface{}) error {
	resp, err := v.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// NewAuthMiddleware закрывает endpoint активностей проверкой сервисного
// токена. Nil-валидатор отключает проверку (эмулятор, локальная разработка).
func NewAuthMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := v.VerifyToken(authHeader); err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
