package dynamo

// DynamoDB attribute names used in keys and expressions across the repos.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldName         = "name"
	fieldPasswordHash = "password_hash"
	fieldIsActive     = "is_active"
	fieldUpdatedAt    = "updated_at"
	fieldOwnerID      = "owner_id"
	fieldSessionID    = "session_id"
	fieldExpiresAt    = "expires_at"

	emailIndex = "email-index"

	// emailGuardPrefix marks the items that reserve an address in the users table.
	emailGuardPrefix = "email#"
)
