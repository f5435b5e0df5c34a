package services

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator()

	t.Run("referral id", func(t *testing.T) {
		pattern := regexp.MustCompile(`^[A-Z0-9]{10}$`)
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			id := gen.ReferralID()
			assert.Regexp(t, pattern, id)
			seen[id] = true
		}
		assert.Greater(t, len(seen), 190)
	})

	t.Run("access key", func(t *testing.T) {
		key := gen.AccessKey()
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key)
		assert.NotEqual(t, key, gen.AccessKey())
	})

	t.Run("uuid", func(t *testing.T) {
		assert.NotEqual(t, uuid.Nil, gen.NewUUID())
	})
}
