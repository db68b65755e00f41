package dto

import "time"

// RegisterRequest представляет запрос на регистрацию
type RegisterRequest struct {
	FirstName string `json:"firstname" binding:"required,max=100"`
	LastName  string `json:"lastname" binding:"required,max=100"`
	Username  string `json:"username" binding:"required,min=3,max=50"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,max=72"`
}

// LoginRequest представляет запрос на вход по username или email
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// ValidateTokenRequest - тело запроса на проверку токена, если нет заголовка Authorization
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// TokenResponse возвращается после успешного входа
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse оборачивает запись или ее публичную проекцию
type UserResponse struct {
	User interface{} `json:"user"`
}

// MessageResponse - ответ с текстовым сообщением
type MessageResponse struct {
	Message string `json:"message"`
}
