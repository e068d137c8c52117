package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService authenticates the operators who run reconciliation
// sessions. The operator email becomes the JWT identity, which is what
// lands in completed_by and approved_by on session transitions.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"operator@clearledger.io"` // Operator email
	Password string `json:"password" validate:"required,min=8" example:"password123"`          // Operator password
}

// RegisterRequest represents the operator registration payload
// @Description Registration request structure
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email" example:"operator@clearledger.io"` // Operator email
	Password  string `json:"password" validate:"required,min=8" example:"password123"`          // Operator password
	FirstName string `json:"firstName" validate:"required,min=2" example:"Jane"`                // First name
	LastName  string `json:"lastName" validate:"required,min=2" example:"Okafor"`               // Last name
	Role      string `json:"role" validate:"required,oneof=operator supervisor" example:"operator"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token    string   `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	Operator Operator `json:"operator"`                                                // Operator information
}

// Operator is a back-office user of the reconciliation system.
// Supervisors approve sessions that operators complete.
type Operator struct {
	ID        int    `json:"id" example:"1"`
	Email     string `json:"email" example:"operator@clearledger.io"`
	FirstName string `json:"firstName" example:"Jane"`
	LastName  string `json:"lastName" example:"Okafor"`
	Role      string `json:"role" example:"operator"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Register creates a new operator
// @Summary Register a new operator
// @Description Register a reconciliation operator or supervisor
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	email := strings.ToLower(req.Email)

	var operatorID int
	err = s.db.QueryRow(`
        INSERT INTO operators (email, password, first_name, last_name, role, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id
    `, email, hashedPassword, req.FirstName, req.LastName, req.Role).Scan(&operatorID)
	if err != nil {
		log.Printf("[AUTH] Operator creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	token, err := generateJWT(email)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Operator %d registered: %s (%s)", operatorID, email, req.Role)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token: token,
		Operator: Operator{
			ID: operatorID, Email: email,
			FirstName: req.FirstName, LastName: req.LastName, Role: req.Role,
		},
	})
}

// Login authenticates an operator
// @Summary Login operator
// @Description Authenticate an operator with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(req.Email)

	var operator Operator
	var hashedPassword string
	err := s.db.QueryRow(`
        SELECT id, email, first_name, last_name, role, password
        FROM operators WHERE email = $1
    `, email).Scan(&operator.ID, &operator.Email, &operator.FirstName,
		&operator.LastName, &operator.Role, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Operator not found: %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for operator: %s", email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(email)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for operator %d", operator.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Operator: operator})
}

// Logout revokes the presented token
// @Summary Logout operator
// @Description Logout and revoke the bearer token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			// Keep the token on the denylist until it would have expired
			// anyway.
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, "auth:revoked:"+token, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to revoke token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetProfile returns the authenticated operator
// @Summary Get operator profile
// @Description Get the authenticated operator's details
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Operator "Operator details"
// @Failure 401 {object} ErrorResponse
// @Router /auth/profile [get]
func (s *AuthService) GetProfile(w http.ResponseWriter, r *http.Request) {
	email, ok := r.Context().Value("userID").(string)
	if !ok || email == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var operator Operator
	err := s.db.QueryRow(`
        SELECT id, email, first_name, last_name, role
        FROM operators WHERE email = $1
    `, email).Scan(&operator.ID, &operator.Email, &operator.FirstName,
		&operator.LastName, &operator.Role)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Operator not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Failed to load operator %s: %v", email, err)
		SendErrorResponse(w, "Failed to fetch operator details", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(operator)
}

func generateJWT(email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": email,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// argon2Params holds the password-hashing cost settings.
type argon2Params struct {
	SaltLength int
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
}

// getArgon2Params returns argon2 settings with safe defaults. argon2.IDKey
// panics on a zero time parameter, so an unconfigured deployment must
// still resolve to working values.
func getArgon2Params() argon2Params {
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)

	return argon2Params{
		SaltLength: viper.GetInt("argon2.salt_length"),
		Time:       uint32(viper.GetInt("argon2.time")),
		Memory:     uint32(viper.GetInt("argon2.memory")),
		Threads:    uint8(viper.GetInt("argon2.threads")),
		KeyLength:  uint32(viper.GetInt("argon2.key_length")),
	}
}

func hashPassword(password string) (string, error) {
	params := getArgon2Params()

	salt := make([]byte, params.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	params := getArgon2Params()
	computedHash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return string(hash) == string(computedHash)
}
