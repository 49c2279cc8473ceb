package interceptors

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v3"

	"github.com/keyturn/go-keyturn-server/global"
)

const (
	tokenExpiryHours = 30 * 24 // 30 days
	tokenAudience    = "keyturn"
)

// JWSMiddleware verifies the bearer token (a JWS signed with the servers
// Ed25519 key) and places the verified owner address into the gin context
// under "ownerAddress". The rotation protocol trusts this value fully.
func JWSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is missing"})
			return
		}
		auth = strings.TrimPrefix(auth, "Bearer ")

		object, err := jose.ParseSigned(auth)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWS message"})
			return
		}

		payload, err := object.Verify(global.PublicKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Failed to verify JWS message"})
			return
		}

		var plMap map[string]interface{}
		if uErr := json.Unmarshal(payload, &plMap); uErr != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload"})
			return
		}

		exp, ok := plMap["exp"].(float64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload (exp missing)"})
			return
		}
		if int64(exp) < time.Now().Unix() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "JWS message expired"})
			return
		}

		sub, ok := plMap["sub"].(string)
		if !ok || sub == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload (sub missing)"})
			return
		}

		c.Set("ownerAddress", sub)
		c.Next()
	}
}

// GenerateJWSToken signs a bearer token for the given owner address with
// the servers private key. Used by the token subcommand; issuing tokens
// in production belongs to the external authentication service.
func GenerateJWSToken(serverPrivateKey ed25519.PrivateKey, ownerAddress, jti string) (string, error) {
	pl := map[string]interface{}{
		"iss": tokenAudience,
		"sub": ownerAddress,
		"iat": time.Now().Unix(),
		"jti": jti,
		"exp": time.Now().Add(time.Hour * tokenExpiryHours).Unix(),
		"aud": tokenAudience,
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: serverPrivateKey}, nil)
	if err != nil {
		return "", err
	}

	plBytes, plErr := json.Marshal(pl)
	if plErr != nil {
		return "", plErr
	}
	object, err := signer.Sign(plBytes)
	if err != nil {
		return "", err
	}

	return object.CompactSerialize()
}
