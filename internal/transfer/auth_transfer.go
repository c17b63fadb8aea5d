package transfer

import "github.com/golang-jwt/jwt/v5"

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

type CustomClaims struct {
	ClientID int64  `json:"client_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenRequest struct {
	ApiKey string `json:"api_key"`
}

type ClientCreation struct {
	Name string `json:"name"`
}

type FrequencyTargetRequest struct {
	Channel     string `json:"channel"`
	Period      string `json:"period"`
	TargetCount int    `json:"target_count"`
}

type ScheduleRequest struct {
	FireAt *string `json:"fire_at"`
}
