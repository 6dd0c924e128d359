// internal/service/frame_policy_test.go
package service

import (
	"testing"

	"challenge-orchestrator/internal/models"
)

func TestFramePolicyResolve(t *testing.T) {
	cfg := FramePolicyConfig{
		Default: models.FrameDirect,
		PerPartner: map[string]models.FramePolicy{
			"officesmb":   models.FrameProxied,
			"legacykiosk": models.FullPageRedirect,
		},
	}

	tests := []struct {
		name          string
		partner       string
		challengeType models.ChallengeType
		want          models.FramePolicy
	}{
		{"Default partner", "webblends", models.ChallengeTypeThreeDSTwo, models.FrameDirect},
		{"Proxied partner", "officesmb", models.ChallengeTypeThreeDSTwo, models.FrameProxied},
		{"Redirect partner", "legacykiosk", models.ChallengeTypeThreeDSTwo, models.FullPageRedirect},
		{"Legacy redirect type overrides partner", "officesmb", models.ChallengeTypeLegacyRedirect, models.FullPageRedirect},
		{"3DS1 type overrides partner", "officesmb", models.ChallengeTypeThreeDSOne, models.FullPageRedirect},
		{"Empty default falls back to direct", "webblends", models.ChallengeTypeThreeDSTwo, models.FrameDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Resolve(tt.partner, tt.challengeType); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %v, want %v", tt.partner, tt.challengeType, got, tt.want)
			}
		})
	}
}
