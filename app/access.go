package app

import "github.com/chriswakefield87/billtosheet-api/app/models"

// CanAccess decides read/download access to a conversion. The only path in
// is exclusive ownership: the registered user who created it, or the
// anonymous cookie value it was created under. There is no admin override
// and no link sharing.
//
// callerUserID is empty for anonymous callers; anonymousID is ignored for
// authenticated ones (the handler passes it empty).
func CanAccess(conv models.Conversion, callerUserID, anonymousID string) bool {
	if conv.UserID != "" {
		return callerUserID != "" && conv.UserID == callerUserID
	}
	if conv.AnonymousID != "" {
		return callerUserID == "" && anonymousID != "" && conv.AnonymousID == anonymousID
	}
	return false
}
