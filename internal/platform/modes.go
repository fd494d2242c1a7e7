package platform

// Course mode slugs
const (
	ModeVerified           = "verified"
	ModeProfessional       = "professional"
	ModeNoIDProfessional   = "no-id-professional"
	ModeExecutiveEducation = "executive-education"
	ModeAudit              = "audit"
	ModeHonor              = "honor"
	DefaultEnrollmentMode  = ModeAudit
)

// modePrecedence orders modes from most to least preferred for
// subsidized enrollments
var modePrecedence = []string{
	ModeVerified,
	ModeProfessional,
	ModeNoIDProfessional,
	ModeExecutiveEducation,
	ModeAudit,
	ModeHonor,
}

// BestMode picks the preferred mode among those a course run offers.
// Unrecognized modes are ignored; no recognized mode yields audit.
func BestMode(available []string) string {
	offered := make(map[string]bool, len(available))
	for _, m := range available {
		offered[m] = true
	}
	for _, m := range modePrecedence {
		if offered[m] {
			return m
		}
	}
	return DefaultEnrollmentMode
}
