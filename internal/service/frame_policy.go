// internal/service/frame_policy.go
package service

import "challenge-orchestrator/internal/models"

// FramePolicyConfig is declarative partner policy: which framing variant a
// partner's challenge content is delivered in. Resolved once per session at
// creation; transitions read the stored policy and never re-derive it.
type FramePolicyConfig struct {
	Default    models.FramePolicy
	PerPartner map[string]models.FramePolicy
}

func DefaultFramePolicyConfig() FramePolicyConfig {
	return FramePolicyConfig{
		Default:    models.FrameDirect,
		PerPartner: map[string]models.FramePolicy{},
	}
}

// Resolve picks the framing variant for a partner. Legacy redirect challenge
// types always navigate top-level regardless of partner.
func (c FramePolicyConfig) Resolve(partner string, challengeType models.ChallengeType) models.FramePolicy {
	if challengeType == models.ChallengeTypeLegacyRedirect || challengeType == models.ChallengeTypeThreeDSOne {
		return models.FullPageRedirect
	}
	if p, ok := c.PerPartner[partner]; ok {
		return p
	}
	if c.Default == "" {
		return models.FrameDirect
	}
	return c.Default
}
