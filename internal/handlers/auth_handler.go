package handlers

import (
	"crypto/ed25519"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"

	"opinion-market/internal/auth"
	"opinion-market/internal/config"
)

// loginMessage is what wallets sign to authenticate.
const loginMessage = "Sign this message to authenticate with the opinion market"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	app config.AppConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(app config.AppConfig) *AuthHandler {
	return &AuthHandler{app: app}
}

// WalletLogin authenticates a caller by wallet address and signature and
// issues a token carrying the roles configured for that address.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pubKey, err := base58.Decode(req.WalletAddress)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	// Wallets return the signature as base58 or hex depending on the client.
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		sig, err = hex.DecodeString(req.Signature)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature format"})
			return
		}
	}

	if !ed25519.Verify(pubKey, []byte(loginMessage), sig) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	token, err := auth.GenerateToken(req.WalletAddress, h.rolesFor(req.WalletAddress))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"wallet_address": req.WalletAddress,
	})
}

func (h *AuthHandler) rolesFor(address string) []string {
	var roles []string
	if contains(h.app.AdminAddresses, address) {
		roles = append(roles, auth.RoleAdmin)
	}
	if contains(h.app.ModeratorAddresses, address) {
		roles = append(roles, auth.RoleModerator)
	}
	if contains(h.app.OperatorAddresses, address) {
		roles = append(roles, auth.RoleOperator)
	}
	return roles
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
