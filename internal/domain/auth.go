package domain

// TokenKind differentiates the two signed credentials issued per session.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)
