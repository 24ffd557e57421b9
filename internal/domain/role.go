package domain

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
)

// Destination tags returned after a successful login so the caller can route.
const (
	DestinationSeller   = "seller"
	DestinationCustomer = "customer"
	DestinationHome     = "home"
)

// ValidRole reports whether role is one of the registrable roles.
func ValidRole(role string) bool {
	return role == RoleCustomer || role == RoleSeller
}

// DestinationFor maps a role tag to the post-login destination tag.
func DestinationFor(role string) string {
	switch role {
	case RoleSeller:
		return DestinationSeller
	case RoleCustomer:
		return DestinationCustomer
	default:
		return DestinationHome
	}
}
