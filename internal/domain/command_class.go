package domain

// Command classes assigned by the phase-1 classifier.
const (
	ClassFieldOperator       = "FIELD_OPERATOR"
	ClassTeamLead            = "TEAM_LEAD"
	ClassTechnicalSpecialist = "TECHNICAL_SPECIALIST"
	ClassCoordinator         = "COORDINATOR"
	ClassCustomerFacing      = "CUSTOMER_FACING"
)

// CommandClasses is the fixed set, in tie-break order.
var CommandClasses = []string{
	ClassFieldOperator,
	ClassTeamLead,
	ClassTechnicalSpecialist,
	ClassCoordinator,
	ClassCustomerFacing,
}

func IsCommandClass(s string) bool {
	for _, c := range CommandClasses {
		if c == s {
			return true
		}
	}
	return false
}
