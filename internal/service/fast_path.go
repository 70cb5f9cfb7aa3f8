package service

import "github.com/coursehub/portal-access/internal/domain"

// DefaultFastPathCodes is the static table of pre-provisioned class codes.
// These resolve without touching the store or the rate limiter; the same
// codes also exist in the access_codes index, so removing an entry here
// degrades it to a normal lookup rather than breaking it.
func DefaultFastPathCodes() map[string]domain.CodeOwner {
	return map[string]domain.CodeOwner{
		"CLAS20261": {RepID: "rep_zaid_deaa", RepName: "Zaid Deaa"},
		"CLAS20262": {RepID: "rep_mohammed_hassanein", RepName: "Mohammed Hassanein"},
		"CLAS20263": {RepID: "rep_ihsan_majid", RepName: "Ihsan Majid"},
		"CLAS20264": {RepID: "rep_ali_khalid", RepName: "Ali Khalid"},
		"CLAS20265": {RepID: "rep_mohammed_jaafar", RepName: "Mohammed Jaafar"},
		"CLAS20266": {RepID: "rep_hassan_mohammed", RepName: "Hassan Mohammed"},
	}
}
