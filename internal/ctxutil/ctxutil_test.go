package ctxutil

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/kenkyu/internal/auth"
)

func TestOwnerAndAccess(t *testing.T) {
	anon := context.Background()
	assert.Nil(t, ClaimsFromContext(anon))
	assert.Equal(t, "", Owner(anon))
	assert.True(t, CanAccess(anon, ""))
	assert.False(t, CanAccess(anon, "lab-a"))

	ctx := WithClaims(anon, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "lab-a"}})
	assert.Equal(t, "lab-a", Owner(ctx))
	assert.True(t, CanAccess(ctx, "lab-a"))
	assert.True(t, CanAccess(ctx, ""))
	assert.False(t, CanAccess(ctx, "lab-b"))
}
