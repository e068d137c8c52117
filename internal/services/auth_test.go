package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()
	service := NewAuthService(db, nil)

	t.Run("successful registration", func(t *testing.T) {
		req := RegisterRequest{
			Email:     "jane@clearledger.io",
			Password:  "password123",
			FirstName: "Jane",
			LastName:  "Okafor",
			Role:      "operator",
		}

		mock.ExpectQuery("INSERT INTO operators").
			WithArgs(req.Email, sqlmock.AnyArg(), req.FirstName, req.LastName, req.Role).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.Operator.Email)
		assert.Equal(t, "operator", response.Operator.Role)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		req := RegisterRequest{
			Email:     "jane@clearledger.io",
			Password:  "password123",
			FirstName: "Jane",
			LastName:  "Okafor",
			Role:      "admin",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()
	service := NewAuthService(db, nil)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("FROM operators").
			WithArgs("jane@clearledger.io").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "password"}).
				AddRow(1, "jane@clearledger.io", "Jane", "Okafor", "operator", hashedPassword))

		req := LoginRequest{
			Email:    "jane@clearledger.io",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
	})

	t.Run("operator not found", func(t *testing.T) {
		mock.ExpectQuery("FROM operators").
			WithArgs("nobody@clearledger.io").
			WillReturnError(sql.ErrNoRows)

		req := LoginRequest{
			Email:    "nobody@clearledger.io",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("FROM operators").
			WithArgs("jane@clearledger.io").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "password"}).
				AddRow(1, "jane@clearledger.io", "Jane", "Okafor", "operator", hashedPassword))

		req := LoginRequest{
			Email:    "jane@clearledger.io",
			Password: "notthepassword",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestPasswordHashingWithoutConfig(t *testing.T) {
	// An unconfigured deployment must not feed zero cost parameters to
	// argon2.IDKey, which panics on time < 1.
	viper.Reset()

	params := getArgon2Params()
	assert.GreaterOrEqual(t, params.Time, uint32(1))
	assert.GreaterOrEqual(t, params.SaltLength, 8)
	assert.GreaterOrEqual(t, params.KeyLength, uint32(16))

	hashed, err := hashPassword("testpassword")
	assert.NoError(t, err)
	assert.True(t, verifyPassword("testpassword", hashed))
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	tokenString, err := generateJWT("jane@clearledger.io")
	assert.NoError(t, err)
	assert.NotEmpty(t, tokenString)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)

	claims, ok := token.Claims.(jwt.MapClaims)
	assert.True(t, ok)
	assert.Equal(t, "jane@clearledger.io", claims["user_id"])
}
