package analyzer

import (
	"math"
	"time"

	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
)

// ProtocolTrustScore summarizes a protocol profile into a 0-100 trust score, higher meaning more trusted.
// Audits, time since listing and the upgrade authority each contribute points.
// A nil profile gets DefaultProtocolTrust.
func ProtocolTrustScore(profile *types.ProtocolProfile, params types.EngineParameters, now time.Time) float64 {
	if profile == nil {
		return params.DefaultProtocolTrust
	}

	audits := profile.AuditCount
	if audits < 0 {
		audits = 0
	}
	if audits > params.TrustMaxAudits {
		audits = params.TrustMaxAudits
	}
	auditPoints := float64(audits) * params.TrustAuditPoints

	var agePoints float64
	if !profile.ListedAt.IsZero() && params.TrustAgeFullDays > 0 {
		ageDays := math.Max(0, now.Sub(profile.ListedAt).Hours()/24)
		agePoints = math.Min(1, ageDays/float64(params.TrustAgeFullDays)) * params.TrustAgeMaxPoints
	}

	authorityPoints := params.UpgradeAuthorityPoints.Points(profile.UpgradeAuthority)

	trust := utils.Clamp(auditPoints+agePoints+authorityPoints, 0, 100)

	scoreLogger.Debug().
		Str("protocol", profile.Slug).
		Int("auditCount", profile.AuditCount).
		Float64("auditPoints", auditPoints).
		Float64("agePoints", agePoints).
		Str("upgradeAuthority", string(profile.UpgradeAuthority)).
		Float64("authorityPoints", authorityPoints).
		Float64("trustScore", trust).
		Msg("Protocol trust score calculated")

	return trust
}
