package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTSecret         string = "Teamlink"
	JWTExpirationTime        = time.Hour * 24
)

// UserClaims 定义了我们 Token 中需要包含的业务信息
type UserClaims struct {
	UserID string   `json:"user_id"`
	Teams  []string `json:"teams"` // 用户所属队伍，用于变更事件相关性过滤
	jwt.RegisteredClaims
}
