package models

// Lifecycle states shared by trades and confirmations. Tagged and Resolved
// are manual states only confirmations reach.
const (
	StatusUnmatched      = "unmatched"
	StatusMatched        = "matched"
	StatusConfirmationOK = "Confirmation OK"
	StatusDiferencia     = "Diferencia"
	StatusTagged         = "tagged"
	StatusResolved       = "resolved"
)
