package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/middleware"
)

// Routes собирает обработчики для регистрации маршрутов
type Routes struct {
	Auth      *AuthHandler
	OAuth     *OAuthHandler
	Users     *UserHandler
	Guard     *middleware.AuthMiddleware
	Providers []string
}

// Register регистрирует маршруты /api/auth и /api/users
func (rt Routes) Register(r gin.IRouter) {
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", rt.Auth.Register)
		authGroup.POST("/login", rt.Auth.Login)
		authGroup.POST("/validate-token", rt.Auth.ValidateToken)
		authGroup.POST("/logout", rt.Auth.Logout)
		authGroup.GET("/me", rt.Guard.RequireAuth(), rt.Auth.Me)

		if rt.OAuth != nil {
			authGroup.GET("/login/:provider", rt.OAuth.BeginLogin)
			// Статические пути callback не конфликтуют с /login/:provider
			for _, name := range rt.Providers {
				authGroup.GET("/"+name+"/callback", rt.OAuth.Callback(name))
			}
		}
	}

	usersGroup := r.Group("/api/users")
	{
		usersGroup.GET("/:id", middleware.ExtractIDParam("id", UserIDContextKey), rt.Users.GetPublicProfile)
	}
}
