package models

import "github.com/golang-jwt/jwt/v5"

const (
	RoleStudent = "student"
	RoleAcademy = "academy"
	RoleAdmin   = "admin"
)

// Application permissions
const (
	PermissionWalletRead       = "wallet:read"
	PermissionWithdrawalWrite  = "withdrawal:write"
	PermissionBankAccountWrite = "bank-account:write"
	PermissionCheckout         = "checkout:write"
	PermissionCouponWrite      = "coupon:write"

	// Admin permissions
	PermissionFinanceApprove = "finance:approve"
	PermissionFinanceAdmin   = "finance:admin"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID      uint     `json:"user_id"`
	Role        string   `json:"role"`
	StudentID   uint     `json:"student_id,omitempty"`
	AcademyID   uint     `json:"academy_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Owner resolves the wallet owner the principal acts for. Admins act for the
// platform wallet.
func (c *UserClaims) Owner() (Owner, bool) {
	switch c.Role {
	case RoleStudent:
		return StudentOwner(c.StudentID), c.StudentID != 0
	case RoleAcademy:
		return AcademyOwner(c.AcademyID), c.AcademyID != 0
	case RoleAdmin:
		return SystemOwner(), true
	}
	return Owner{}, false
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionWalletRead,
			PermissionFinanceApprove,
			PermissionFinanceAdmin,
			PermissionCouponWrite,
		}
	case RoleAcademy:
		return []string{
			PermissionWalletRead,
			PermissionWithdrawalWrite,
			PermissionBankAccountWrite,
			PermissionCouponWrite,
		}
	case RoleStudent:
		return []string{
			PermissionWalletRead,
			PermissionWithdrawalWrite,
			PermissionBankAccountWrite,
			PermissionCheckout,
		}
	default:
		return []string{}
	}
}
