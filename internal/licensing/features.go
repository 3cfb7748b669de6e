package licensing

import "guardian-api/internal/models"

// Feature is a dashboard feature flag
type Feature string

const (
	FeatureBasicModeration    Feature = "basic_moderation"
	FeatureLogging            Feature = "logging"
	FeatureAutomod            Feature = "automod"
	FeatureAutoResponses      Feature = "auto_responses"
	FeatureAntiRaid           Feature = "anti_raid"
	FeatureAdvancedModeration Feature = "advanced_moderation"
	FeatureCustomCommands     Feature = "custom_commands"
	FeaturePremiumFeatures    Feature = "premium_features"
)

// Each list is written out in full and is a superset of the tier below.
var featureSets = map[models.Tier][]Feature{
	models.TierNone: {
		FeatureBasicModeration, FeatureLogging,
	},
	models.TierBasic: {
		FeatureBasicModeration, FeatureLogging,
		FeatureAutomod, FeatureAutoResponses,
	},
	models.TierPremium: {
		FeatureBasicModeration, FeatureLogging,
		FeatureAutomod, FeatureAutoResponses,
		FeatureAntiRaid, FeatureAdvancedModeration,
	},
	models.TierExclusive: {
		FeatureBasicModeration, FeatureLogging,
		FeatureAutomod, FeatureAutoResponses,
		FeatureAntiRaid, FeatureAdvancedModeration,
		FeatureCustomCommands, FeaturePremiumFeatures,
	},
}

// Features returns the ordered feature flags enabled for a tier.
// Unknown tiers get the free set.
func Features(t models.Tier) []Feature {
	set, ok := featureSets[t]
	if !ok {
		set = featureSets[models.TierNone]
	}
	out := make([]Feature, len(set))
	copy(out, set)
	return out
}

// TierLabel is the name shown for a tier, FREE when there is none
func TierLabel(t models.Tier) string {
	if t == models.TierNone {
		return "FREE"
	}
	return string(t)
}
